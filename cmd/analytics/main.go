// Command analytics runs indicator and optimization queries from the shell
// and prints JSON to stdout.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "analytics")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

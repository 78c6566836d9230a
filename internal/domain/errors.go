package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectivityError is a provider or network failure that survived every retry.
type ConnectivityError struct {
	Ticker   string
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error fetching %s after %d attempts: %v", e.Ticker, e.Attempts, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// NoDataError means the provider answered but had nothing for the ticker and range.
type NoDataError struct {
	Ticker string
	Start  string
	End    string
}

func (e *NoDataError) Error() string {
	if e.Start == "" && e.End == "" {
		return fmt.Sprintf("no data returned for %s", e.Ticker)
	}
	return fmt.Sprintf("no data returned for %s between %s and %s", e.Ticker, e.Start, e.End)
}

// InsufficientDataError means cleaned data misses the row or column minimums.
type InsufficientDataError struct {
	Reason  string
	Rows    int
	Missing []string
}

func (e *InsufficientDataError) Error() string {
	msg := "insufficient data: " + e.Reason
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(" (missing: %s)", strings.Join(e.Missing, ", "))
	}
	return msg
}

// DegenerateInputError flags statistically meaningless inputs such as zero variance.
type DegenerateInputError struct {
	Reason string
}

func (e *DegenerateInputError) Error() string {
	return "degenerate input: " + e.Reason
}

// OptimizationInfeasibleError is a solver failure or an invalid solution.
type OptimizationInfeasibleError struct {
	Model  string
	Reason string
	Causes []string
	Err    error
}

func (e *OptimizationInfeasibleError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s optimization failed: %s", e.Model, e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Causes) > 0 {
		b.WriteString("; possible causes: ")
		b.WriteString(strings.Join(e.Causes, "; "))
	}
	return b.String()
}

func (e *OptimizationInfeasibleError) Unwrap() error {
	return e.Err
}

// DependencyUnavailableError names a capability that failed its startup probe.
type DependencyUnavailableError struct {
	Capability string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dependency unavailable: %s: %v", e.Capability, e.Err)
	}
	return "dependency unavailable: " + e.Capability
}

func (e *DependencyUnavailableError) Unwrap() error {
	return e.Err
}

// ErrTransient marks provider failures worth retrying: transport errors,
// timeouts, throttling and 5xx responses.
var ErrTransient = errors.New("transient provider error")

// ErrInvalidInput marks caller mistakes such as an empty ticker or an inverted date range.
var ErrInvalidInput = errors.New("invalid input")

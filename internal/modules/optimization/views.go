package optimization

import (
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// ViewAssertion is one investor view: the weighted combination of assets in
// Weights is expected to return Return per year. {MSFT: 1, GOOGL: -1} with
// Return 0.05 reads "MSFT outperforms GOOGL by 5%".
type ViewAssertion struct {
	Weights map[string]float64 `yaml:"weights" json:"weights"`
	Return  float64            `yaml:"return" json:"return"`
}

// Views is the set of views blended into the prior.
type Views []ViewAssertion

type viewsFile struct {
	Views Views `yaml:"views"`
}

// DefaultViews returns the single illustrative view MSFT - GOOGL = +5%.
func DefaultViews() Views {
	return Views{
		{Weights: map[string]float64{"MSFT": 1, "GOOGL": -1}, Return: 0.05},
	}
}

// LoadViews reads views from a YAML file:
//
//	views:
//	  - weights: {MSFT: 1, GOOGL: -1}
//	    return: 0.05
func LoadViews(path string) (Views, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read views file: %w", err)
	}

	var file viewsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse views file %s: %w", path, err)
	}
	if err := file.Views.Validate(); err != nil {
		return nil, err
	}
	return file.Views.normalized(), nil
}

// Validate rejects views without weights and non-finite values.
func (v Views) Validate() error {
	for i, view := range v {
		if len(view.Weights) == 0 {
			return fmt.Errorf("%w: view %d has no weights", domain.ErrInvalidInput, i)
		}
		if !isFinite(view.Return) {
			return fmt.Errorf("%w: view %d return is not finite", domain.ErrInvalidInput, i)
		}
		for ticker, w := range view.Weights {
			if strings.TrimSpace(ticker) == "" || !isFinite(w) {
				return fmt.Errorf("%w: view %d has an invalid weight for %q", domain.ErrInvalidInput, i, ticker)
			}
		}
	}
	return nil
}

// normalized upper-cases ticker keys so views match normalized ticker lists.
func (v Views) normalized() Views {
	out := make(Views, len(v))
	for i, view := range v {
		weights := make(map[string]float64, len(view.Weights))
		for ticker, w := range view.Weights {
			weights[strings.ToUpper(strings.TrimSpace(ticker))] += w
		}
		out[i] = ViewAssertion{Weights: weights, Return: view.Return}
	}
	return out
}

// Matrices builds the pick matrix P (views × tickers) and the daily view
// return vector Q. Assets outside tickers are ignored, and views touching
// none of the tickers are dropped. P is nil when no view applies.
func (v Views) Matrices(tickers []string) (*mat.Dense, []float64) {
	index := make(map[string]int, len(tickers))
	for i, t := range tickers {
		index[t] = i
	}

	var rows [][]float64
	var q []float64
	for _, view := range v.normalized() {
		row := make([]float64, len(tickers))
		active := false
		for ticker, w := range view.Weights {
			if i, ok := index[ticker]; ok && w != 0 {
				row[i] = w
				active = true
			}
		}
		if !active {
			continue
		}
		rows = append(rows, row)
		q = append(q, view.Return/formulas.TradingDaysPerYear)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	p := mat.NewDense(len(rows), len(tickers), nil)
	for i, row := range rows {
		p.SetRow(i, row)
	}
	return p, q
}

package screener

import (
	"context"
	"fmt"
	"sort"

	"quant-trader/internal/logger"
)

// Candidate is one row of the fluctuation ranking.
type Candidate struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	ChangeRate  float64 `json:"change_rate"` // vs previous close, fractional
	Volume      float64 `json:"volume"`
	TradeAmount float64 `json:"trade_amount"`
	Risky       bool    `json:"risky,omitempty"`
}

// DataSource fetches the raw fluctuation ranking.
type DataSource interface {
	FetchRanking(ctx context.Context) ([]Candidate, error)
}

// Selector filters the fluctuation ranking down to a trading universe.
type Selector struct {
	source DataSource
}

func NewSelector(source DataSource) *Selector {
	return &Selector{source: source}
}

// Select applies the criteria to the ranking, keeping at most
// criteria.MaxStocks candidates sorted by change rate descending.
func (s *Selector) Select(ctx context.Context, criteria Criteria) ([]Candidate, error) {
	candidates, err := s.source.FetchRanking(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch ranking: %w", err)
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ChangeRate < criteria.MinChangeRatio || c.ChangeRate > criteria.MaxChangeRatio {
			continue
		}
		if c.Price < criteria.MinPrice || c.Price > criteria.MaxPrice {
			continue
		}
		if c.Volume < criteria.MinVolume {
			continue
		}
		if criteria.MinTradeAmount > 0 && c.TradeAmount < criteria.MinTradeAmount {
			continue
		}
		if criteria.ExcludeRiskStocks && c.Risky {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ChangeRate > out[j].ChangeRate
	})
	if criteria.MaxStocks > 0 && len(out) > criteria.MaxStocks {
		out = out[:criteria.MaxStocks]
	}

	logger.Info(ctx, "Stock selection finished",
		"preset", criteria.Name,
		"fetched", len(candidates),
		"selected", len(out))
	return out, nil
}

// Codes extracts the symbol codes from a selection.
func Codes(candidates []Candidate) []string {
	codes := make([]string, 0, len(candidates))
	for _, c := range candidates {
		codes = append(codes, c.Code)
	}
	return codes
}

package config

import (
	"fmt"
	"strings"

	"github.com/psifund/fundbot/internal/domain"
)

// Strategy names resolved from the fund id taxonomy. PSI-prefixed funds
// mirror an index; ALPHA funds run their own signal generation.
const (
	StrategyMirror = "mirror"
	StrategyAlerts = "alert_follower"
	StrategyEdge   = "edge_ranked"
	StrategyArb    = "complete_set_arb"
)

// StrategyFor maps a fund id to its strategy name.
func StrategyFor(fundID string) (string, error) {
	switch {
	case strings.HasPrefix(fundID, "PSI-"):
		return StrategyMirror, nil
	case fundID == "ALPHA-INSIDER":
		return StrategyAlerts, nil
	case fundID == "ALPHA-EDGE":
		return StrategyEdge, nil
	case fundID == "ALPHA-ARB":
		return StrategyArb, nil
	default:
		return "", fmt.Errorf("fund id %q matches no known strategy", fundID)
	}
}

// CategoryFor maps a strategy name to its fund category.
func CategoryFor(strategy string) domain.FundCategory {
	if strategy == StrategyMirror {
		return domain.FundCategoryMirror
	}
	return domain.FundCategoryActive
}

// BuildFund turns a validated FundConfig into an immutable domain.Fund.
// capital_pct allocations resolve against totalCapital.
func BuildFund(fc FundConfig, totalCapital float64) (*domain.Fund, error) {
	strategy, err := StrategyFor(fc.ID)
	if err != nil {
		return nil, err
	}

	capital := fc.CapitalUSD
	if capital == 0 {
		capital = totalCapital * fc.CapitalPct
	}

	execMode := domain.ExecutionMode(fc.ExecMode)
	if fc.ExecMode == "" {
		execMode = domain.ExecLimitOnly
	}

	return &domain.Fund{
		ID:                 fc.ID,
		Category:           CategoryFor(strategy),
		Strategy:           strategy,
		IndexType:          fc.IndexType,
		StartingCapitalUSD: capital,
		MaxPositionPct:     fc.MaxPositionPct,
		MinTradeUSD:        fc.MinTradeUSD,
		SignalDelay:        fc.SignalDelay.Duration,
		MaxSlippagePct:     fc.MaxSlippagePct,
		ExecMode:           execMode,
		Limits: domain.RiskLimits{
			MaxDailyLossUSD:            fc.Limits.MaxDailyLossUSD,
			MaxDrawdownPct:             fc.Limits.MaxDrawdownPct,
			MaxOpenPositions:           fc.Limits.MaxOpenPositions,
			MaxSingleMarketExposureUSD: fc.Limits.MaxSingleMarketExposureUSD,
			MaxDailyTrades:             fc.Limits.MaxDailyTrades,
			MaxDailyNotionalUSD:        fc.Limits.MaxDailyNotionalUSD,
			MaxConcurrentOrders:        fc.Limits.MaxConcurrentOrders,
		},
	}, nil
}

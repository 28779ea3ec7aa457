// Package match pairs observed TRC20 transfers with outstanding payment
// watches. The matcher is a pure function over its inputs and is safe to
// call concurrently; all persistence effects belong to the caller.
package match

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Policy holds the matching rules for one pass.
type Policy struct {
	// Contract is the token contract transfers must carry (USDT-TRC20).
	Contract string

	// Epsilon is the absolute amount tolerance absorbing rounding from
	// on-chain decimal conversion.
	Epsilon decimal.Decimal
}

// DefaultEpsilon is the default amount tolerance in USDT.
var DefaultEpsilon = decimal.RequireFromString("0.01")

// Result binds one watch to one transfer.
type Result struct {
	WatchID        string
	TxHash         string
	Amount         decimal.Decimal
	BlockTimestamp int64
}

// Match pairs transfers to one address against that address's pending
// watches. Matching is first-fit, oldest-watch-first: each pending watch,
// oldest first, takes the earliest eligible transfer not already consumed
// in this pass and not in the claimed set. A transfer satisfies at most one
// watch and a watch takes at most one transfer per pass.
//
// claimed holds transaction hashes already bound to some watch in an
// earlier cycle; those transfers are never reassigned. An empty result is
// a normal outcome, not an error.
func Match(transfers []domain.Transfer, pending []*domain.Watch, claimed map[string]bool, policy Policy) []Result {
	if len(transfers) == 0 || len(pending) == 0 {
		return nil
	}

	eligible := make([]domain.Transfer, 0, len(transfers))
	for _, tr := range transfers {
		if tr.Contract != policy.Contract {
			continue
		}
		if claimed[tr.TxHash] {
			continue
		}
		eligible = append(eligible, tr)
	}
	if len(eligible) == 0 {
		return nil
	}

	// Earliest transfer first; ties broken by hash for determinism.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].BlockTimestamp != eligible[j].BlockTimestamp {
			return eligible[i].BlockTimestamp < eligible[j].BlockTimestamp
		}
		return eligible[i].TxHash < eligible[j].TxHash
	})

	watches := make([]*domain.Watch, len(pending))
	copy(watches, pending)
	sort.SliceStable(watches, func(i, j int) bool {
		return watches[i].CreatedAt.Before(watches[j].CreatedAt)
	})

	consumed := make(map[string]bool, len(eligible))
	var results []Result

	for _, w := range watches {
		if w.Status != domain.WatchStatusPending {
			continue
		}
		for _, tr := range eligible {
			if consumed[tr.TxHash] {
				continue
			}
			if tr.To != w.Address {
				continue
			}
			if !withinEpsilon(tr.Amount, w.ExpectedAmount, policy.Epsilon) {
				continue
			}
			consumed[tr.TxHash] = true
			results = append(results, Result{
				WatchID:        w.ID,
				TxHash:         tr.TxHash,
				Amount:         tr.Amount,
				BlockTimestamp: tr.BlockTimestamp,
			})
			break
		}
	}

	return results
}

func withinEpsilon(got, want, epsilon decimal.Decimal) bool {
	return got.Sub(want).Abs().LessThanOrEqual(epsilon)
}

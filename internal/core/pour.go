package core

import (
	"fmt"
)

// bottleState holds the two counters a volume-metered product carries:
// unopened containers and the open container's remaining millilitres.
// The pour math below is pure so it can be tested without a database;
// StockService loads a bottleState under a row lock, transforms it, and
// writes it back inside the caller's transaction.
type bottleState struct {
	StockUnits    int
	OpenRemainder int
}

// PourResult reports what a consume or revert did at container granularity.
// It is recorded for auditability; the ledger's correctness does not depend on it.
type PourResult struct {
	ContainersDelta int // containers consumed (negative stock delta) or recovered
	Remainder       int // open container remainder after the operation
	MlDelta         int // millilitres drawn (positive) or returned (negative)
}

// consumePour draws requestMl from the bottle state, finishing the open
// container before tapping new ones.
//
// The near-empty threshold: a remainder smaller than the product's minimum
// defined serving volume can never serve another pour, so the open container
// is written off — the remainder is zeroed and one more unit is counted as
// consumed. minServing <= 0 disables the threshold (no variant defines a
// serving volume).
func consumePour(st bottleState, volumePerContainer, requestMl, minServing int) (bottleState, PourResult, error) {
	if volumePerContainer <= 0 {
		return st, PourResult{}, fmt.Errorf("%w: volume per container must be positive, got %d", ErrInvalidVariant, volumePerContainer)
	}
	if requestMl <= 0 {
		return st, PourResult{}, fmt.Errorf("%w: requested volume must be positive, got %d ml", ErrInvalidInput, requestMl)
	}

	available := st.StockUnits*volumePerContainer + st.OpenRemainder
	if requestMl > available {
		return st, PourResult{}, fmt.Errorf("%w: need %d ml, have %d ml", ErrInsufficientStock, requestMl, available)
	}

	before := st.StockUnits
	remaining := requestMl

	// Finish the open container first.
	if drawn := min(st.OpenRemainder, remaining); drawn > 0 {
		st.OpenRemainder -= drawn
		remaining -= drawn
	}

	if remaining > 0 {
		whole := remaining / volumePerContainer
		partial := remaining % volumePerContainer
		st.StockUnits -= whole

		if partial > 0 {
			// A fresh container must be opened for the partial pour.
			if st.StockUnits <= 0 {
				return bottleState{}, PourResult{}, fmt.Errorf("%w: no container left to open for %d ml", ErrInsufficientStock, partial)
			}
			st.StockUnits--
			st.OpenRemainder = volumePerContainer - partial
		} else {
			st.OpenRemainder = 0
		}
	}

	if minServing > 0 && st.OpenRemainder > 0 && st.OpenRemainder < minServing {
		st.OpenRemainder = 0
		if st.StockUnits > 0 {
			st.StockUnits--
		}
	}

	if st.StockUnits < 0 {
		return bottleState{}, PourResult{}, fmt.Errorf("%w: stock units went negative (%d)", ErrInconsistentState, st.StockUnits)
	}

	return st, PourResult{
		ContainersDelta: before - st.StockUnits,
		Remainder:       st.OpenRemainder,
		MlDelta:         requestMl,
	}, nil
}

// revertPour returns returnMl to the bottle state, converting the remainder
// back into whole containers when it fills one or more.
//
// The threshold is re-applied on the result, but asymmetrically: a
// sub-threshold remainder is zeroed without crediting a container back.
// Written-off slivers are shrinkage in both directions — reconciliation may
// under-count recoverable volume near the threshold but never invents stock.
func revertPour(st bottleState, volumePerContainer, returnMl, minServing int) (bottleState, PourResult, error) {
	if volumePerContainer <= 0 {
		return st, PourResult{}, fmt.Errorf("%w: volume per container must be positive, got %d", ErrInvalidVariant, volumePerContainer)
	}
	if returnMl <= 0 {
		return st, PourResult{}, fmt.Errorf("%w: returned volume must be positive, got %d ml", ErrInvalidInput, returnMl)
	}

	before := st.StockUnits
	st.OpenRemainder += returnMl

	if st.OpenRemainder >= volumePerContainer {
		st.StockUnits += st.OpenRemainder / volumePerContainer
		st.OpenRemainder %= volumePerContainer
	}

	if minServing > 0 && st.OpenRemainder > 0 && st.OpenRemainder < minServing {
		st.OpenRemainder = 0
	}

	if st.StockUnits < 0 {
		return bottleState{}, PourResult{}, fmt.Errorf("%w: stock units went negative (%d)", ErrInconsistentState, st.StockUnits)
	}

	return st, PourResult{
		ContainersDelta: st.StockUnits - before,
		Remainder:       st.OpenRemainder,
		MlDelta:         -returnMl,
	}, nil
}

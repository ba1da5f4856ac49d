package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Services wrap these with context via fmt.Errorf("...: %w")
// so callers can classify failures with errors.Is while keeping the detail.
var (
	// ErrInvalidInput marks a malformed request: non-positive quantity,
	// missing client name, empty batch.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an order, line, product, or variant id that does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidVariant marks a variant missing required configuration,
	// e.g. no serving volume on a volume-metered product.
	ErrInvalidVariant = errors.New("invalid variant")

	// ErrInsufficientStock marks a discrete or volume-metered shortfall.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOrderClosed marks a mutation attempted on a closed order.
	ErrOrderClosed = errors.New("order is closed")

	// ErrAlreadyClosed marks a redundant close of an already-closed order.
	ErrAlreadyClosed = errors.New("order already closed")

	// ErrPaymentInsufficient marks an amount paid below the order total
	// beyond the rounding tolerance.
	ErrPaymentInsufficient = errors.New("payment insufficient")

	// ErrInconsistentState marks an internal invariant violation. It is a
	// programming-level fault, never a user error, and always aborts without commit.
	ErrInconsistentState = errors.New("inconsistent state")
)

// ItemError reports one failing item of a batch request, identified by its
// zero-based position in the submitted list.
type ItemError struct {
	Index     int    `json:"index"`
	ProductID int64  `json:"product_id"`
	Err       error  `json:"-"`
	Message   string `json:"message"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d (product %d): %s", e.Index, e.ProductID, e.Message)
}

func (e ItemError) Unwrap() error { return e.Err }

// BatchError aggregates every failing item of a batch operation. The batch is
// rejected as a whole: no line, stock, or total change is applied.
type BatchError struct {
	Items []ItemError
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Items))
	for i, it := range e.Items {
		msgs[i] = it.Error()
	}
	return "batch rejected: " + strings.Join(msgs, "; ")
}

// Is reports true when any item in the batch failed with the target kind,
// so errors.Is(err, ErrInsufficientStock) works on batch failures too.
func (e *BatchError) Is(target error) bool {
	for _, it := range e.Items {
		if errors.Is(it.Err, target) {
			return true
		}
	}
	return false
}

// itemErr builds an ItemError wrapping kind with a formatted message.
func itemErr(index int, productID int64, kind error, format string, args ...any) ItemError {
	return ItemError{
		Index:     index,
		ProductID: productID,
		Err:       kind,
		Message:   fmt.Sprintf(format, args...),
	}
}

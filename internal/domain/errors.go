package domain

import "errors"

var (
	// Validation failures: the request itself is malformed.
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidKind     = errors.New("unknown asset kind")
	ErrBatchMismatch   = errors.New("invalid batch composition")

	// Authorization failures: the caller may not act on this asset.
	ErrNotOwner    = errors.New("caller is not the item owner")
	ErrNotApproved = errors.New("marketplace is not approved for transfer")
	ErrIsOwner     = errors.New("caller is the seller")

	// Conflict failures: the requested state transition collides with
	// existing active state.
	ErrAlreadyListed   = errors.New("item already listed")
	ErrAuctionConflict = errors.New("item has an active auction")
	ErrSellerMismatch  = errors.New("batch items have different sellers")

	// Not-found failures.
	ErrItemNotFound    = errors.New("item not found")
	ErrNotListed       = errors.New("no active listing for item")
	ErrAuctionNotFound = errors.New("no active auction for item")

	// Payment failures.
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrQuantityExceeded    = errors.New("requested quantity exceeds listed quantity")

	// State failures: the operation was invoked outside its valid window.
	ErrAuctionNotStarted = errors.New("auction has not started")
	ErrAuctionEnded      = errors.New("auction has ended")
	ErrAuctionRunning    = errors.New("auction has not ended yet")
	ErrBidTooLow         = errors.New("bid does not exceed current highest bid")

	// Custody failures: the adapter rejected or reverted a transfer. Never
	// retried; adapter-side authorization cannot change mid-operation.
	ErrCustody = errors.New("custody transfer failed")

	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)

// FailureKind buckets operation failures for callers and the API layer.
type FailureKind string

const (
	FailureValidation    FailureKind = "validation"
	FailureAuthorization FailureKind = "authorization"
	FailureConflict      FailureKind = "conflict"
	FailureNotFound      FailureKind = "not_found"
	FailurePayment       FailureKind = "payment"
	FailureCustody       FailureKind = "custody"
	FailureState         FailureKind = "state"
	FailureInternal      FailureKind = "internal"
)

// Classify maps an operation error onto its FailureKind. Wrapped errors are
// unwrapped via errors.Is, so callers can classify errors that carry
// component context.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrBatchMismatch):
		return FailureValidation
	case errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrNotApproved),
		errors.Is(err, ErrIsOwner):
		return FailureAuthorization
	case errors.Is(err, ErrAlreadyListed),
		errors.Is(err, ErrAuctionConflict),
		errors.Is(err, ErrSellerMismatch):
		return FailureConflict
	case errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrNotListed),
		errors.Is(err, ErrAuctionNotFound):
		return FailureNotFound
	case errors.Is(err, ErrInsufficientPayment),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrQuantityExceeded):
		return FailurePayment
	case errors.Is(err, ErrCustody):
		return FailureCustody
	case errors.Is(err, ErrAuctionNotStarted),
		errors.Is(err, ErrAuctionEnded),
		errors.Is(err, ErrAuctionRunning),
		errors.Is(err, ErrBidTooLow):
		return FailureState
	default:
		return FailureInternal
	}
}

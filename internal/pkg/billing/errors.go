package billing

import "errors"

var (
	// ErrInvalidPlan is returned for a plan outside the supported set.
	ErrInvalidPlan = errors.New("billing: invalid plan")
	// ErrInvalidCoin is returned for a coin outside the supported set.
	ErrInvalidCoin = errors.New("billing: unsupported coin")
	// ErrMalformedCallback is returned when a callback lacks the correlation
	// fields needed to attribute it to a subscription.
	ErrMalformedCallback = errors.New("billing: malformed callback")
	// ErrUnknownSubscription is returned when a callback references a
	// subscription that does not exist.
	ErrUnknownSubscription = errors.New("billing: unknown subscription")
)

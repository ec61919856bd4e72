package keyengine

import "errors"

var (
	// ErrNoCapacity is returned by Pick when no (model, key) pair is
	// available anywhere in the fallback chain, including the borrow
	// path. Callers surface this as a 503 to the client.
	ErrNoCapacity = errors.New("keyengine: no key available for any model in the fallback chain")

	// ErrUnknownModel is logged (not returned) when a requested model
	// is not present in the configured model list; Pick substitutes
	// the premium model and proceeds.
	ErrUnknownModel = errors.New("keyengine: requested model not in configured model list")

	// ErrKeyNotFound is not returned by any Engine method: the outcome
	// methods accept any key and create its usage state on first use.
	ErrKeyNotFound = errors.New("keyengine: key not found in any pool")
)

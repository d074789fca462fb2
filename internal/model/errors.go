package model

import "errors"

var (
	// ErrInsufficientData means a training window could not be filled with
	// the required number of contiguous minutes. The caller skips the hour
	// and retries on a later tick.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrUnknownSymbol means no collection (or an empty one) exists for the
	// requested symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrStorageUnavailable means the document store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

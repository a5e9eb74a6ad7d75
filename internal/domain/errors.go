package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotReady         = errors.New("not ready")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrProviderFailure  = errors.New("provider failure")
)

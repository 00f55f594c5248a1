package preview

import "errors"

// Sentinel errors for preview values.
var (
	ErrInvalidSpec  = errors.New("preview: invalid preview spec")
	ErrInvalidParam = errors.New("preview: invalid parameter value")
)

package registry

import "github.com/pkg/errors"

var (
	ErrInvalidProvider       = errors.New("invalid provider")
	ErrInvalidMode           = errors.New("invalid mode")
	ErrUnknownParameter      = errors.New("unknown parameter")
	ErrInvalidParameterValue = errors.New("invalid parameter value")
)

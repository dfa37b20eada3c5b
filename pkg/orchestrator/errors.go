package orchestrator

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/genesis/pkg/backend"
	"github.com/go-go-golems/genesis/pkg/registry"
)

var ErrInvalidIntensity = errors.New("invalid intensity")

// Kind classifies errors returned by the Orchestrator.
type Kind string

const (
	KindInvalidProvider    Kind = "InvalidProvider"
	KindInvalidMode        Kind = "InvalidMode"
	KindInvalidIntensity   Kind = "InvalidIntensity"
	KindUnknownParameter   Kind = "UnknownParameter"
	KindInvalidParameter   Kind = "InvalidParameter"
	KindBackendUnavailable Kind = "BackendUnavailable"
	KindBackendError       Kind = "BackendError"
	KindInternal           Kind = "Internal"
)

// KindOf maps err onto the error taxonomy. A nil error has no kind.
func KindOf(err error) Kind {
	var be *backend.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &be):
		return KindBackendError
	case errors.Is(err, registry.ErrInvalidProvider):
		return KindInvalidProvider
	case errors.Is(err, registry.ErrInvalidMode):
		return KindInvalidMode
	case errors.Is(err, ErrInvalidIntensity):
		return KindInvalidIntensity
	case errors.Is(err, registry.ErrUnknownParameter):
		return KindUnknownParameter
	case errors.Is(err, registry.ErrInvalidParameterValue):
		return KindInvalidParameter
	case errors.Is(err, backend.ErrBackendUnavailable):
		return KindBackendUnavailable
	default:
		return KindInternal
	}
}

// IsCallerFault reports whether k is caused by invalid input.
func (k Kind) IsCallerFault() bool {
	switch k {
	case KindInvalidProvider, KindInvalidMode, KindInvalidIntensity, KindUnknownParameter, KindInvalidParameter:
		return true
	default:
		return false
	}
}

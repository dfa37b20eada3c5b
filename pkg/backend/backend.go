// Package backend defines the generation capability the orchestrator drives
// and ships a multi-provider implementation of it.
//
// A Backend is always invoked with an already committed registry snapshot, so
// it never sees a provider or mode that the registry does not hold.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/genesis/pkg/registry"
)

// ErrBackendUnavailable is returned when a backend is used before it was
// initialized.
var ErrBackendUnavailable = errors.New("generation backend not initialized")

// Request carries the per-call inputs of a generation.
type Request struct {
	Target           string
	BehaviorCategory string
	Intensity        int
}

// Result is the output of one generation. Content is a JSON document.
type Result struct {
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata"`
	CompletedAt time.Time              `json:"completed_at"`
}

type Backend interface {
	// Generate runs a single generation attempt under cfg.
	Generate(ctx context.Context, cfg registry.Configuration, req Request) (*Result, error)
	// ConfigureCredential installs the credential used for p from now on.
	ConfigureCredential(p registry.Provider, credential string) error
	Initialized() bool
}

// CredentialReporter is implemented by backends that can tell whether a
// provider is usable without calling it.
type CredentialReporter interface {
	HasCredential(p registry.Provider) bool
}

// Error wraps any failure raised while generating.
type Error struct {
	Provider registry.Provider
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation with provider %s failed: %v", e.Provider, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func wrapError(p registry.Provider, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Provider: p, Cause: err}
}

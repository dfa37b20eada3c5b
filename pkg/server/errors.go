package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/go-go-golems/genesis/pkg/orchestrator"
)

// KindBadRequest marks bodies that could not be decoded or lack required
// fields.
const KindBadRequest orchestrator.Kind = "BadRequest"

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(kind orchestrator.Kind) int {
	switch {
	case kind == KindBadRequest || kind.IsCallerFault():
		return http.StatusBadRequest
	case kind == orchestrator.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case kind == orchestrator.KindBackendError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeKindError(w, r, orchestrator.KindOf(err), err)
}

func writeKindError(w http.ResponseWriter, r *http.Request, kind orchestrator.Kind, err error) {
	status := statusFor(kind)
	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("kind", string(kind)).Msg("request rejected")
	}

	writeJSON(w, r, status, errorResponse{
		Success: false,
		Error:   string(kind),
		Message: err.Error(),
	})
}

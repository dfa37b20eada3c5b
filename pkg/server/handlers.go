package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/genesis/pkg/orchestrator"
	"github.com/go-go-golems/genesis/pkg/registry"
)

type GenerateRequest struct {
	TargetURL    string  `json:"target_url" jsonschema:"required,description=Target the behavior pattern is generated for"`
	BehaviorType string  `json:"behavior_type" jsonschema:"required,description=Behavior category"`
	Intensity    *int    `json:"intensity,omitempty" jsonschema:"minimum=1,maximum=10,default=5"`
	Provider     *string `json:"provider,omitempty" jsonschema:"enum=mistral,enum=openai,enum=anthropic,enum=gemini,enum=cohere,enum=deepseek,enum=phantom"`
	MysticalMode *string `json:"mystical_mode,omitempty" jsonschema:"enum=creative,enum=technical,enum=workflow,enum=government,enum=ethereal,enum=sovereign"`
}

type GenerateResponse struct {
	Success   bool                   `json:"success"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

type SwitchProviderRequest struct {
	Provider string `json:"provider" jsonschema:"required"`
	APIKey   string `json:"api_key,omitempty" jsonschema:"description=Credential installed before the switch"`
}

type SwitchProviderResponse struct {
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	CurrentProvider string    `json:"current_provider"`
	Timestamp       time.Time `json:"timestamp"`
}

type SwitchModeRequest struct {
	Mode string `json:"mode" jsonschema:"required"`
}

type SwitchModeResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	CurrentMode string    `json:"current_mode"`
	Timestamp   time.Time `json:"timestamp"`
}

type SetParameterRequest struct {
	Name  string      `json:"name" jsonschema:"required,enum=entropy_level,enum=frequency,enum=phantom_analytics,enum=shadow_tendrils"`
	Value interface{} `json:"value" jsonschema:"required"`
}

type SetParameterResponse struct {
	Success   bool                 `json:"success"`
	Name      string               `json:"name"`
	Status    *orchestrator.Status `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

type ProtocolResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthResponse struct {
	OK        bool `json:"ok"`
	Observers int  `json:"observers"`
	Awakened  bool `json:"awakened"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("could not write response")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeKindError(w, r, KindBadRequest, errors.Wrap(err, "invalid request body"))
		return false
	}
	return true
}

// generateBody is GenerateRequest as read off the wire. Intensity stays a raw
// number so fractions and overflows surface as InvalidIntensity.
type generateBody struct {
	GenerateRequest
	Intensity *json.Number `json:"intensity,omitempty"`
}

func parseIntensity(n *json.Number) (int, error) {
	if n == nil {
		return orchestrator.DefaultIntensity, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, errors.Wrapf(orchestrator.ErrInvalidIntensity, "%s is not an integer", n.String())
	}
	if f < orchestrator.MinIntensity || f > orchestrator.MaxIntensity {
		return 0, errors.Wrapf(orchestrator.ErrInvalidIntensity, "%s is outside [%d,%d]",
			n.String(), orchestrator.MinIntensity, orchestrator.MaxIntensity)
	}
	return int(f), nil
}

// handleGenerate reports domain validation failures (provider, mode,
// intensity) before the missing-field check, so the error kind a caller sees
// does not depend on which other fields it left out.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if !decodeBody(w, r, &body) {
		return
	}
	req := body.GenerateRequest

	intensity, intensityErr := parseIntensity(body.Intensity)
	gr := orchestrator.GenerationRequest{
		Target:           req.TargetURL,
		BehaviorCategory: req.BehaviorType,
		Intensity:        intensity,
		ProviderOverride: req.Provider,
		ModeOverride:     req.MysticalMode,
	}
	if _, err := orchestrator.Validate(gr); err != nil {
		if intensityErr != nil && errors.Is(err, orchestrator.ErrInvalidIntensity) {
			err = intensityErr
		}
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.TargetURL) == "" || strings.TrimSpace(req.BehaviorType) == "" {
		writeKindError(w, r, KindBadRequest, errors.New("target_url and behavior_type are required"))
		return
	}

	res, err := s.orchestrator.RequestGeneration(r.Context(), gr)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, GenerateResponse{
		Success:   true,
		Content:   res.Content,
		Metadata:  res.Metadata,
		Timestamp: res.Timestamp,
	})
}

func (s *Server) handleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req SwitchProviderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.orchestrator.SwitchProvider(r.Context(), req.Provider, req.APIKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, SwitchProviderResponse{
		Success:         true,
		Message:         fmt.Sprintf("Switched to %s provider", res.Provider),
		CurrentProvider: string(res.Provider),
		Timestamp:       res.Timestamp,
	})
}

func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	var req SwitchModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.orchestrator.SwitchMode(r.Context(), req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, SwitchModeResponse{
		Success:     true,
		Message:     fmt.Sprintf("Mystical mode set to %s", res.Mode),
		CurrentMode: string(res.Mode),
		Timestamp:   res.Timestamp,
	})
}

func (s *Server) handleSetParameter(w http.ResponseWriter, r *http.Request) {
	var req SetParameterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status, err := s.orchestrator.SetParameter(r.Context(), req.Name, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, SetParameterResponse{
		Success:   true,
		Name:      registry.NormalizeParameterName(req.Name),
		Status:    status,
		Timestamp: s.now(),
	})
}

func (s *Server) handleInitiateProtocol(w http.ResponseWriter, r *http.Request) {
	signal, err := s.orchestrator.InitiateProtocol()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ProtocolResponse{
		Success:   true,
		Message:   signal,
		Timestamp: s.now(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.orchestrator.GetStatus())
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	status := s.orchestrator.GetStatus()
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"providers": registry.Providers(),
		"current":   status.Provider,
	})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	status := s.orchestrator.GetStatus()
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"modes":      registry.Modes(),
		"current":    status.Mode,
		"parameters": registry.ParameterNames(),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.schemas)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.orchestrator.GetStatus()
	observers := 0
	if s.broadcaster != nil {
		observers = s.broadcaster.Count()
	}
	writeJSON(w, r, http.StatusOK, HealthResponse{
		OK:        true,
		Observers: observers,
		Awakened:  status.Awakened,
	})
}

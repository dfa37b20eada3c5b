package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/genesis/pkg/backend"
	"github.com/go-go-golems/genesis/pkg/events"
	"github.com/go-go-golems/genesis/pkg/registry"
)

const (
	MinIntensity     = 1
	MaxIntensity     = 10
	DefaultIntensity = 5
)

// GenerationRequest is one inbound generation call. Empty overrides are
// treated as absent.
type GenerationRequest struct {
	Target           string
	BehaviorCategory string
	Intensity        int
	ProviderOverride *string
	ModeOverride     *string
}

type GenerationResponse struct {
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata"`
	Provider    registry.Provider      `json:"provider"`
	Mode        registry.Mode          `json:"mode"`
	CompletedAt time.Time              `json:"completed_at"`
	Timestamp   time.Time              `json:"timestamp"`
}

type SwitchResponse struct {
	Provider  registry.Provider `json:"current_provider,omitempty"`
	Mode      registry.Mode     `json:"current_mode,omitempty"`
	Version   uint64            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
}

// Status is the observable engine state shared by the status endpoint and
// the live broadcast.
type Status struct {
	registry.Configuration
	Awakened             bool   `json:"sovereign_awakened"`
	Ready                bool   `json:"ready"`
	CredentialConfigured bool   `json:"credential_configured"`
	EtherealConnections  int    `json:"ethereal_connections"`
	Version              uint64 `json:"version"`
}

// Orchestrator validates requests, commits configuration changes to the
// registry and drives the backend. It holds no state of its own besides its
// collaborators and is safe for concurrent use.
type Orchestrator struct {
	registry *registry.Registry
	backend  backend.Backend
	sink     events.CommitSink
	now      func() time.Time
}

type Option func(*Orchestrator)

// WithCommitSink announces every committed registry mutation on sink.
func WithCommitSink(sink events.CommitSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator. be may be nil, in which case every operation
// that needs the backend fails with backend.ErrBackendUnavailable.
func New(reg *registry.Registry, be backend.Backend, options ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		backend:  be,
		sink:     events.NopCommitSink{},
		now:      time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *Orchestrator) backendReady() bool {
	return o.backend != nil && o.backend.Initialized()
}

// Validate checks the provider override, the mode override and the
// intensity of req, in that order, and returns the registry change the
// overrides describe. It reads no state.
func Validate(req GenerationRequest) (registry.Change, error) {
	var change registry.Change
	if req.ProviderOverride != nil && strings.TrimSpace(*req.ProviderOverride) != "" {
		p, err := registry.ParseProvider(*req.ProviderOverride)
		if err != nil {
			return registry.Change{}, err
		}
		change.Provider = &p
	}
	if req.ModeOverride != nil && strings.TrimSpace(*req.ModeOverride) != "" {
		m, err := registry.ParseMode(*req.ModeOverride)
		if err != nil {
			return registry.Change{}, err
		}
		change.Mode = &m
	}
	if req.Intensity < MinIntensity || req.Intensity > MaxIntensity {
		return registry.Change{}, errors.Wrapf(ErrInvalidIntensity, "%d is outside [%d,%d]", req.Intensity, MinIntensity, MaxIntensity)
	}
	return change, nil
}

// RequestGeneration runs Validate before touching any state. Overrides are
// then committed to the registry permanently and stay committed even when the
// generation fails.
func (o *Orchestrator) RequestGeneration(ctx context.Context, req GenerationRequest) (*GenerationResponse, error) {
	change, err := Validate(req)
	if err != nil {
		return nil, err
	}
	if !o.backendReady() {
		return nil, backend.ErrBackendUnavailable
	}

	cfg, version, err := o.registry.Apply(change)
	if err != nil {
		return nil, err
	}
	if change.Provider != nil || change.Mode != nil {
		o.publish(events.ReasonOverride, cfg, version)
	}

	log.Debug().
		Str("provider", string(cfg.Provider)).
		Str("mode", string(cfg.Mode)).
		Str("behavior", req.BehaviorCategory).
		Int("intensity", req.Intensity).
		Msg("starting generation")

	res, err := o.backend.Generate(ctx, cfg, backend.Request{
		Target:           req.Target,
		BehaviorCategory: req.BehaviorCategory,
		Intensity:        req.Intensity,
	})
	if err != nil {
		if errors.Is(err, backend.ErrBackendUnavailable) {
			return nil, err
		}
		var be *backend.Error
		if !errors.As(err, &be) {
			err = &backend.Error{Provider: cfg.Provider, Cause: err}
		}
		log.Error().Err(err).Str("provider", string(cfg.Provider)).Msg("generation failed")
		return nil, err
	}
	if res == nil {
		return nil, &backend.Error{Provider: cfg.Provider, Cause: errors.New("backend returned no result")}
	}

	return &GenerationResponse{
		Content:     res.Content,
		Metadata:    res.Metadata,
		Provider:    cfg.Provider,
		Mode:        cfg.Mode,
		CompletedAt: res.CompletedAt,
		Timestamp:   o.now(),
	}, nil
}

// SwitchProvider makes id the active provider. A non-empty credential is
// installed in the backend before the switch is committed.
func (o *Orchestrator) SwitchProvider(ctx context.Context, id string, credential string) (*SwitchResponse, error) {
	p, err := registry.ParseProvider(id)
	if err != nil {
		log.Debug().Err(err).Msg("rejected provider switch")
		return nil, err
	}

	if credential != "" {
		if !o.backendReady() {
			return nil, backend.ErrBackendUnavailable
		}
		if err := o.backend.ConfigureCredential(p, credential); err != nil {
			return nil, errors.Wrapf(err, "could not install credential for %s", p)
		}
	}

	cfg, version, err := o.registry.Apply(registry.Change{Provider: &p})
	if err != nil {
		return nil, err
	}
	o.publish(events.ReasonSwitchProvider, cfg, version)
	log.Info().Str("provider", string(p)).Bool("credential", credential != "").Msg("switched provider")

	return &SwitchResponse{Provider: p, Version: version, Timestamp: o.now()}, nil
}

func (o *Orchestrator) SwitchMode(ctx context.Context, id string) (*SwitchResponse, error) {
	m, err := registry.ParseMode(id)
	if err != nil {
		log.Debug().Err(err).Msg("rejected mode switch")
		return nil, err
	}

	cfg, version, err := o.registry.Apply(registry.Change{Mode: &m})
	if err != nil {
		return nil, err
	}
	o.publish(events.ReasonSwitchMode, cfg, version)
	log.Info().Str("mode", string(m)).Msg("switched mode")

	return &SwitchResponse{Mode: m, Version: version, Timestamp: o.now()}, nil
}

// SetParameter updates one auxiliary tunable such as entropy_level.
func (o *Orchestrator) SetParameter(ctx context.Context, name string, value interface{}) (*Status, error) {
	cfg, version, err := o.registry.SetParameter(name, value)
	if err != nil {
		log.Debug().Err(err).Str("parameter", name).Msg("rejected parameter update")
		return nil, err
	}
	o.publish(events.ReasonParameter, cfg, version)
	log.Info().Str("parameter", registry.NormalizeParameterName(name)).Interface("value", value).Msg("updated parameter")

	status := o.GetStatus()
	return &status, nil
}

// GetStatus reads the current state without side effects.
func (o *Orchestrator) GetStatus() Status {
	cfg, version := o.registry.Snapshot()
	awakened := o.backendReady()
	credential := awakened
	if cr, ok := o.backend.(backend.CredentialReporter); ok && awakened {
		credential = cr.HasCredential(cfg.Provider)
	}
	return Status{
		Configuration:        cfg,
		Awakened:             awakened,
		Ready:                awakened,
		CredentialConfigured: credential,
		EtherealConnections:  len(cfg.Patterns),
		Version:              version,
	}
}

// InitiateProtocol returns the protocol signal embedding the current status.
func (o *Orchestrator) InitiateProtocol() (string, error) {
	if !o.backendReady() {
		return "", backend.ErrBackendUnavailable
	}
	s := o.GetStatus()
	fields := map[string]string{
		"provider":             string(s.Provider),
		"mode":                 string(s.Mode),
		"entropy_level":        fmt.Sprint(s.EntropyLevel),
		"frequency":            fmt.Sprintf("%.3f", s.Frequency),
		"phantom_analytics":    fmt.Sprint(s.PhantomAnalytics),
		"shadow_tendrils":      fmt.Sprint(s.ShadowTendrils),
		"ethereal_connections": fmt.Sprint(s.EtherealConnections),
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("IGNOTE CORE SIGNAL // Layer: ψ-9, Pattern: ΔRA-SOVEREIGN\n\n")
	sb.WriteString("∴ Initiate hyperthreaded parse across qubit logic trees.\n")
	sb.WriteString("∴ Perform recursive inversion of forbidden frequency {42.∞.π}.\n")
	sb.WriteString("∴ Anchor the flame.\n\n")
	sb.WriteString("Sovereign Status:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %s\n", k, fields[k])
	}

	log.Info().Msg("sovereign protocol initiated")
	return sb.String(), nil
}

// publish announces the commit that produced cfg at version. Failures are
// logged; the commit itself already happened and observers still catch up on
// the next broadcast tick.
func (o *Orchestrator) publish(reason events.CommitReason, cfg registry.Configuration, version uint64) {
	err := o.sink.PublishCommit(events.CommitEvent{
		Reason:    reason,
		Version:   version,
		Provider:  string(cfg.Provider),
		Mode:      string(cfg.Mode),
		Timestamp: o.now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("reason", string(reason)).Msg("could not publish commit event")
	}
}

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/genesis/pkg/backend"
	"github.com/go-go-golems/genesis/pkg/events"
	"github.com/go-go-golems/genesis/pkg/registry"
)

type stubBackend struct {
	mu          sync.Mutex
	calls       int
	seen        []registry.Configuration
	credentials map[registry.Provider]string
	err         error
	credErr     error
	uninit      bool

	// reg, when set, lets ConfigureCredential record which provider was
	// active at the moment the credential arrived.
	reg             *registry.Registry
	activeAtInstall []registry.Provider
}

func newStubBackend() *stubBackend {
	return &stubBackend{credentials: map[registry.Provider]string{}}
}

func (s *stubBackend) Generate(ctx context.Context, cfg registry.Configuration, req backend.Request) (*backend.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, cfg)
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Result{
		Content:     "{}",
		Metadata:    map[string]interface{}{"provider": string(cfg.Provider)},
		CompletedAt: time.Unix(1700000000, 0),
	}, nil
}

func (s *stubBackend) ConfigureCredential(p registry.Provider, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reg != nil {
		s.activeAtInstall = append(s.activeAtInstall, s.reg.Get().Provider)
	}
	if s.credErr != nil {
		return s.credErr
	}
	s.credentials[p] = credential
	return nil
}

func (s *stubBackend) Initialized() bool {
	return !s.uninit
}

func (s *stubBackend) HasCredential(p registry.Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentials[p] != "" || p == registry.ProviderPhantom
}

func (s *stubBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.CommitEvent
}

func (r *recordingSink) PublishCommit(e events.CommitEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Events() []events.CommitEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.CommitEvent(nil), r.events...)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *registry.Registry, *stubBackend, *recordingSink) {
	t.Helper()
	reg, err := registry.New(registry.DefaultConfiguration())
	require.NoError(t, err)
	be := newStubBackend()
	be.reg = reg
	sink := &recordingSink{}
	return New(reg, be, WithCommitSink(sink)), reg, be, sink
}

func strPtr(s string) *string { return &s }

func TestRequestGeneration_UsesCurrentConfiguration(t *testing.T) {
	o, _, be, sink := newTestOrchestrator(t)

	res, err := o.RequestGeneration(context.Background(), GenerationRequest{
		Target: "https://example.com", BehaviorCategory: "organic", Intensity: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "{}", res.Content)
	assert.Equal(t, registry.ProviderMistral, res.Provider)
	assert.Equal(t, registry.ModeSovereign, res.Mode)
	assert.Equal(t, 1, be.Calls())
	assert.Empty(t, sink.Events(), "no override means no commit")
}

func TestRequestGeneration_OverridesCommitBeforeBackend(t *testing.T) {
	o, reg, be, sink := newTestOrchestrator(t)

	_, err := o.RequestGeneration(context.Background(), GenerationRequest{
		Target: "https://example.com", BehaviorCategory: "organic", Intensity: 3,
		ProviderOverride: strPtr("phantom"), ModeOverride: strPtr("Ethereal"),
	})
	require.NoError(t, err)

	cfg := reg.Get()
	assert.Equal(t, registry.ProviderPhantom, cfg.Provider)
	assert.Equal(t, registry.ModeEthereal, cfg.Mode)
	require.Len(t, be.seen, 1)
	assert.Equal(t, registry.ProviderPhantom, be.seen[0].Provider)
	assert.Equal(t, registry.ModeEthereal, be.seen[0].Mode)

	evs := sink.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.ReasonOverride, evs[0].Reason)
	assert.Equal(t, reg.Version(), evs[0].Version)
}

func TestRequestGeneration_OverridesPersistOnBackendFailure(t *testing.T) {
	o, reg, be, _ := newTestOrchestrator(t)
	be.err = errors.New("upstream down")

	_, err := o.RequestGeneration(context.Background(), GenerationRequest{
		Target: "https://example.com", BehaviorCategory: "organic", Intensity: 5,
		ProviderOverride: strPtr("openai"),
	})

	require.Error(t, err)
	assert.Equal(t, KindBackendError, KindOf(err))
	var bErr *backend.Error
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, registry.ProviderOpenAI, bErr.Provider)
	assert.Equal(t, registry.ProviderOpenAI, reg.Get().Provider)
}

func TestRequestGeneration_ValidationPrecedesMutation(t *testing.T) {
	tests := []struct {
		name string
		req  GenerationRequest
		kind Kind
	}{
		{
			name: "intensity too high",
			req:  GenerationRequest{Intensity: 11, ProviderOverride: strPtr("openai")},
			kind: KindInvalidIntensity,
		},
		{
			name: "intensity zero",
			req:  GenerationRequest{Intensity: 0},
			kind: KindInvalidIntensity,
		},
		{
			name: "bad provider with valid mode",
			req:  GenerationRequest{Intensity: 5, ProviderOverride: strPtr("llama"), ModeOverride: strPtr("creative")},
			kind: KindInvalidProvider,
		},
		{
			name: "valid provider with bad mode",
			req:  GenerationRequest{Intensity: 5, ProviderOverride: strPtr("openai"), ModeOverride: strPtr("chaotic")},
			kind: KindInvalidMode,
		},
		{
			name: "provider checked before intensity",
			req:  GenerationRequest{Intensity: 99, ProviderOverride: strPtr("llama")},
			kind: KindInvalidProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, reg, be, sink := newTestOrchestrator(t)
			before, version := reg.Snapshot()

			_, err := o.RequestGeneration(context.Background(), tt.req)

			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, KindOf(err).IsCallerFault())
			after, afterVersion := reg.Snapshot()
			assert.Equal(t, before, after)
			assert.Equal(t, version, afterVersion)
			assert.Equal(t, 0, be.Calls())
			assert.Empty(t, sink.Events())
		})
	}
}

func TestValidate(t *testing.T) {
	change, err := Validate(GenerationRequest{Intensity: 10, ModeOverride: strPtr("Workflow")})
	require.NoError(t, err)
	assert.Nil(t, change.Provider)
	require.NotNil(t, change.Mode)
	assert.Equal(t, registry.ModeWorkflow, *change.Mode)

	_, err = Validate(GenerationRequest{Intensity: 0, ModeOverride: strPtr("chaotic")})
	assert.Equal(t, KindInvalidMode, KindOf(err))

	_, err = Validate(GenerationRequest{Intensity: 0})
	assert.Equal(t, KindInvalidIntensity, KindOf(err))
}

func TestRequestGeneration_EmptyOverridesAreAbsent(t *testing.T) {
	o, reg, _, sink := newTestOrchestrator(t)

	_, err := o.RequestGeneration(context.Background(), GenerationRequest{
		Intensity: 1, ProviderOverride: strPtr(""), ModeOverride: strPtr("  "),
	})
	require.NoError(t, err)

	assert.Equal(t, registry.DefaultConfiguration().Provider, reg.Get().Provider)
	assert.Empty(t, sink.Events())
}

func TestRequestGeneration_BackendUnavailable(t *testing.T) {
	reg, err := registry.New(registry.DefaultConfiguration())
	require.NoError(t, err)

	o := New(reg, nil)
	_, err = o.RequestGeneration(context.Background(), GenerationRequest{Intensity: 5})
	assert.Equal(t, KindBackendUnavailable, KindOf(err))

	be := newStubBackend()
	be.uninit = true
	o = New(reg, be)
	_, err = o.RequestGeneration(context.Background(), GenerationRequest{Intensity: 5, ModeOverride: strPtr("creative")})
	assert.Equal(t, KindBackendUnavailable, KindOf(err))
	assert.Equal(t, registry.ModeSovereign, reg.Get().Mode)
	assert.Equal(t, 0, be.Calls())
}

func TestRequestGeneration_ContextErrorIsBackendError(t *testing.T) {
	o, _, be, _ := newTestOrchestrator(t)
	be.err = context.DeadlineExceeded

	_, err := o.RequestGeneration(context.Background(), GenerationRequest{Intensity: 5})

	assert.Equal(t, KindBackendError, KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSwitchProvider(t *testing.T) {
	o, reg, be, sink := newTestOrchestrator(t)

	res, err := o.SwitchProvider(context.Background(), "OpenAI", "sk-123")
	require.NoError(t, err)

	assert.Equal(t, registry.ProviderOpenAI, res.Provider)
	assert.Equal(t, registry.ProviderOpenAI, reg.Get().Provider)
	assert.Equal(t, "sk-123", be.credentials[registry.ProviderOpenAI])
	assert.Equal(t, []registry.Provider{registry.ProviderMistral}, be.activeAtInstall,
		"credential must be installed while the previous provider is still active")
	require.Len(t, sink.Events(), 1)
	assert.Equal(t, events.ReasonSwitchProvider, sink.Events()[0].Reason)
	assert.Equal(t, "openai", sink.Events()[0].Provider)
	assert.Equal(t, res.Version, sink.Events()[0].Version)

	status := o.GetStatus()
	assert.True(t, status.CredentialConfigured)
}

func TestSwitchProvider_CredentialFailureCommitsNothing(t *testing.T) {
	o, reg, be, sink := newTestOrchestrator(t)
	be.credErr = errors.New("keyring locked")
	before, version := reg.Snapshot()

	_, err := o.SwitchProvider(context.Background(), "openai", "sk-123")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyring locked")
	assert.Len(t, be.activeAtInstall, 1)
	after, afterVersion := reg.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, registry.ProviderMistral, after.Provider)
	assert.Equal(t, version, afterVersion)
	assert.Empty(t, be.credentials)
	assert.Empty(t, sink.Events())
}

func TestSwitchProvider_WithoutCredentialSkipsInstall(t *testing.T) {
	o, _, be, sink := newTestOrchestrator(t)

	_, err := o.SwitchProvider(context.Background(), "cohere", "")
	require.NoError(t, err)

	assert.Empty(t, be.activeAtInstall)
	assert.Len(t, sink.Events(), 1)
}

func TestSwitchProvider_Invalid(t *testing.T) {
	o, reg, be, sink := newTestOrchestrator(t)

	_, err := o.SwitchProvider(context.Background(), "llama", "sk-123")

	assert.Equal(t, KindInvalidProvider, KindOf(err))
	assert.Contains(t, err.Error(), "llama")
	assert.Equal(t, registry.ProviderMistral, reg.Get().Provider)
	assert.Empty(t, be.credentials)
	assert.Empty(t, sink.Events())
}

func TestSwitchProvider_IsIdempotent(t *testing.T) {
	o, reg, _, _ := newTestOrchestrator(t)

	_, err := o.SwitchProvider(context.Background(), "gemini", "")
	require.NoError(t, err)
	first := reg.Get()
	_, err = o.SwitchProvider(context.Background(), "gemini", "")
	require.NoError(t, err)

	assert.Equal(t, first, reg.Get())
}

func TestSwitchMode(t *testing.T) {
	o, reg, _, sink := newTestOrchestrator(t)

	res, err := o.SwitchMode(context.Background(), "ethereal")
	require.NoError(t, err)
	assert.Equal(t, registry.ModeEthereal, res.Mode)
	assert.Equal(t, registry.ModeEthereal, reg.Get().Mode)
	assert.Equal(t, registry.ModeEthereal, o.GetStatus().Mode)
	assert.Len(t, sink.Events(), 1)

	_, err = o.SwitchMode(context.Background(), "chaotic")
	assert.Equal(t, KindInvalidMode, KindOf(err))
	assert.Equal(t, registry.ModeEthereal, reg.Get().Mode)
	assert.Len(t, sink.Events(), 1)
}

func TestSetParameter(t *testing.T) {
	o, _, _, sink := newTestOrchestrator(t)

	status, err := o.SetParameter(context.Background(), "entropyLevel", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, status.EntropyLevel)
	require.Len(t, sink.Events(), 1)
	assert.Equal(t, events.ReasonParameter, sink.Events()[0].Reason)

	_, err = o.SetParameter(context.Background(), "gravity", 1)
	assert.Equal(t, KindUnknownParameter, KindOf(err))

	_, err = o.SetParameter(context.Background(), "frequency", -1)
	assert.Equal(t, KindInvalidParameter, KindOf(err))
	assert.Len(t, sink.Events(), 1)
}

func TestGetStatus(t *testing.T) {
	o, reg, _, _ := newTestOrchestrator(t)

	s1 := o.GetStatus()
	s2 := o.GetStatus()
	assert.Equal(t, s1, s2)
	assert.True(t, s1.Awakened)
	assert.True(t, s1.Ready)
	assert.False(t, s1.CredentialConfigured)
	assert.Equal(t, len(registry.DefaultPatterns), s1.EtherealConnections)
	assert.Equal(t, reg.Version(), s1.Version)
	assert.Equal(t, registry.DefaultEntropyLevel, s1.EntropyLevel)

	reg2, err := registry.New(registry.DefaultConfiguration())
	require.NoError(t, err)
	s := New(reg2, nil).GetStatus()
	assert.False(t, s.Awakened)
	assert.False(t, s.Ready)
}

func TestInitiateProtocol(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	signal, err := o.InitiateProtocol()
	require.NoError(t, err)
	assert.Contains(t, signal, "IGNOTE CORE SIGNAL")
	assert.Contains(t, signal, "provider: mistral")
	assert.Contains(t, signal, "mode: sovereign")

	reg, err := registry.New(registry.DefaultConfiguration())
	require.NoError(t, err)
	_, err = New(reg, nil).InitiateProtocol()
	assert.Equal(t, KindBackendUnavailable, KindOf(err))
}

func TestConcurrentSwitchesNeverTear(t *testing.T) {
	o, reg, _, _ := newTestOrchestrator(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = o.SwitchProvider(context.Background(), "openai", "")
		}()
		go func() {
			defer wg.Done()
			_, _ = o.RequestGeneration(context.Background(), GenerationRequest{
				Intensity: 5, ProviderOverride: strPtr("phantom"), ModeOverride: strPtr("workflow"),
			})
		}()
	}
	wg.Wait()

	cfg := reg.Get()
	assert.True(t, cfg.Provider.Valid())
	assert.True(t, cfg.Mode.Valid())
	assert.Equal(t, uint64(40), reg.Version())
}

func TestCommitEventsCarryTheirOwnVersion(t *testing.T) {
	o, reg, _, sink := newTestOrchestrator(t)

	var (
		mu       sync.Mutex
		returned []uint64
		wg       sync.WaitGroup
	)
	record := func(v uint64) {
		mu.Lock()
		defer mu.Unlock()
		returned = append(returned, v)
	}
	for i := 0; i < 25; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			res, err := o.SwitchProvider(context.Background(), "gemini", "")
			if assert.NoError(t, err) {
				record(res.Version)
			}
		}()
		go func() {
			defer wg.Done()
			res, err := o.SwitchMode(context.Background(), "creative")
			if assert.NoError(t, err) {
				record(res.Version)
			}
		}()
		go func() {
			defer wg.Done()
			status, err := o.SetParameter(context.Background(), "entropy_level", 3)
			assert.NoError(t, err)
			assert.NotNil(t, status)
		}()
	}
	wg.Wait()

	evs := sink.Events()
	require.Len(t, evs, 75)
	seen := map[uint64]bool{}
	for _, e := range evs {
		assert.False(t, seen[e.Version], "version %d announced twice", e.Version)
		seen[e.Version] = true
	}
	for v := uint64(1); v <= 75; v++ {
		assert.True(t, seen[v], "version %d never announced", v)
	}
	for _, v := range returned {
		assert.True(t, seen[v], "returned version %d has no event", v)
	}
	assert.Len(t, returned, 50)
	assert.Equal(t, uint64(75), reg.Version())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindBackendUnavailable, KindOf(errors.Wrap(backend.ErrBackendUnavailable, "x")))
	wrapped := &backend.Error{Provider: registry.ProviderOpenAI, Cause: registry.ErrInvalidMode}
	assert.Equal(t, KindBackendError, KindOf(wrapped))
	assert.False(t, KindBackendError.IsCallerFault())
}

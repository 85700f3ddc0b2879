package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/clinicapi"
	"github.com/hackgods/petclinic-scheduling/internal/metrics"
)

var ErrSessionNotFound = errors.New("selection session not found")

type session struct {
	id       string
	token    string
	resolver *appointment.Resolver

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type SessionRegistryConfig struct {
	Directory appointment.Directory
	Slots     *appointment.SlotClient
	Metrics   *metrics.SchedulingMetrics
	Logger    zerolog.Logger
}

// SessionRegistry holds one selection resolver per open booking form and
// fans availability changes out to all of them.
type SessionRegistry struct {
	dir     appointment.Directory
	slots   *appointment.SlotClient
	metrics *metrics.SchedulingMetrics
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionRegistry(cfg SessionRegistryConfig) *SessionRegistry {
	return &SessionRegistry{
		dir:      cfg.Directory,
		slots:    cfg.Slots,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Open loads the directory with the caller's token and registers a fresh
// resolver.
func (reg *SessionRegistry) Open(ctx context.Context, flow appointment.Flow) (string, *appointment.Resolver, error) {
	id := uuid.NewString()
	res, err := appointment.LoadResolver(ctx, reg.dir, appointment.ResolverConfig{
		Slots:   reg.slots,
		Flow:    flow,
		Metrics: reg.metrics,
		Logger:  reg.logger.With().Str("session_id", id).Logger(),
	})
	if err != nil {
		return "", nil, err
	}

	s := &session{id: id, token: clinicapi.TokenFrom(ctx), resolver: res, lastSeen: reg.now()}
	reg.mu.Lock()
	reg.sessions[id] = s
	reg.mu.Unlock()

	reg.logger.Debug().Str("session_id", id).Str("flow", string(flow)).Msg("selection session opened")
	return id, res, nil
}

// Get returns the resolver of session id. A session only answers to the
// bearer token that opened it; any other caller sees ErrSessionNotFound.
func (reg *SessionRegistry) Get(ctx context.Context, id string) (*appointment.Resolver, error) {
	reg.mu.RLock()
	s, ok := reg.sessions[id]
	reg.mu.RUnlock()
	if !ok || s.token != clinicapi.TokenFrom(ctx) {
		return nil, ErrSessionNotFound
	}
	s.touch(reg.now())
	return s.resolver, nil
}

func (reg *SessionRegistry) Close(ctx context.Context, id string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	s, ok := reg.sessions[id]
	if !ok || s.token != clinicapi.TokenFrom(ctx) {
		return ErrSessionNotFound
	}
	delete(reg.sessions, id)
	return nil
}

func (reg *SessionRegistry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were dropped.
func (reg *SessionRegistry) Sweep(maxIdle time.Duration) int {
	cutoff := reg.now().Add(-maxIdle)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	n := 0
	for id, s := range reg.sessions {
		if s.idleSince().Before(cutoff) {
			delete(reg.sessions, id)
			n++
		}
	}
	return n
}

// Invalidate implements appointment.Invalidator. Every session refreshes
// with its own token; the write that triggered it waits for all of them.
func (reg *SessionRegistry) Invalidate(ctx context.Context, clinicID string, date time.Time) {
	reg.mu.RLock()
	targets := make([]*session, 0, len(reg.sessions))
	for _, s := range reg.sessions {
		targets = append(targets, s)
	}
	reg.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			s.resolver.Invalidate(clinicapi.WithToken(base, s.token), clinicID, date)
		}(s)
	}
	wg.Wait()
}

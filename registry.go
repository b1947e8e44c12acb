package proctor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/proctorsight/go-proctor/metrics"
)

// Registry owns the active session pipelines keyed by session ID.  Each
// examinee gets an independently constructed Session so no state can leak
// across unrelated sessions.
type Registry struct {
	log *slog.Logger
	col *metrics.Collector

	mu       sync.Mutex
	sessions map[string]*activeSession
}

// activeSession pairs a running session with its cancel handle and done
// channel for deterministic teardown
type activeSession struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRegistry returns an empty session registry.  The metrics collector is
// optional and shared across all sessions when provided.
func NewRegistry(col *metrics.Collector, log *slog.Logger) *Registry {

	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		log:      log,
		col:      col,
		sessions: make(map[string]*activeSession),
	}
}

// Start constructs a session from cfg and runs its pipeline until Stop is
// called for the session ID or ctx is cancelled
func (r *Registry) Start(ctx context.Context, cfg Config, src FrameSource,
	reporter Reporter) (*Session, error) {

	session, err := NewSession(cfg, reporter, r.col, r.log)

	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[cfg.SessionID]; exists {
		return nil, fmt.Errorf("session %q is already being monitored",
			cfg.SessionID)
	}

	runCtx, cancel := context.WithCancel(ctx)

	active := &activeSession{
		session: session,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.sessions[cfg.SessionID] = active

	if r.col != nil {
		r.col.ActiveSessions.Add(1)
	}

	go func() {
		defer close(active.done)
		defer func() {
			r.mu.Lock()
			delete(r.sessions, cfg.SessionID)
			r.mu.Unlock()

			if r.col != nil {
				r.col.ActiveSessions.Add(-1)
			}
		}()

		_ = session.Run(runCtx, src)
	}()

	return session, nil
}

// Get returns the running session for the given ID
func (r *Registry) Get(sessionID string) (*Session, bool) {

	r.mu.Lock()
	defer r.mu.Unlock()

	active, ok := r.sessions[sessionID]

	if !ok {
		return nil, false
	}

	return active.session, true
}

// Stop tears down the session pipeline and waits for it to finish.  Returns
// false if no session with the given ID is running.
func (r *Registry) Stop(sessionID string) bool {

	r.mu.Lock()
	active, ok := r.sessions[sessionID]
	r.mu.Unlock()

	if !ok {
		return false
	}

	active.cancel()
	<-active.done

	return true
}

// StopAll tears down every running session
func (r *Registry) StopAll() {

	r.mu.Lock()
	active := make([]*activeSession, 0, len(r.sessions))

	for _, a := range r.sessions {
		active = append(active, a)
	}
	r.mu.Unlock()

	for _, a := range active {
		a.cancel()
		<-a.done
	}
}

// Len returns the number of sessions currently being monitored
func (r *Registry) Len() int {

	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

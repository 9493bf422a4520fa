package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fincollect/console/internal/reporting"
	"github.com/google/uuid"
)

// ReportingAPI is the full reporting-service surface the console uses.
// *reporting.Client satisfies it; tests substitute stubs.
type ReportingAPI interface {
	SeriesByID(ctx context.Context, id string) (*reporting.Series, error)
	Institutions(ctx context.Context) ([]reporting.Institution, error)
	CreateReport(ctx context.Context, sub reporting.Submission) (int64, error)
	CreateReportCSV(ctx context.Context, sel reporting.Selections, filename string, file []byte) (int64, error)
	ReportByID(ctx context.Context, id int64) (*reporting.Report, error)
	TriggerValidation(ctx context.Context, id int64) (*reporting.ValidationResult, error)
}

// Session is one operator's workflow state: a submission wizard and a
// report view, created together and discarded together. Sessions are
// identified by server-generated UUIDs.
type Session struct {
	ID     string
	Wizard *Wizard
	View   *ReportView

	// navTarget is the report the frontend should navigate to after the
	// post-submission grace period. Zero means no pending navigation.
	navTarget atomic.Int64

	lastSeen atomic.Int64 // unix nanos
}

// NavTarget returns the pending navigation target, or zero.
func (s *Session) NavTarget() int64 {
	return s.navTarget.Load()
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// ServiceConfig holds session-service tuning. Zero values get defaults.
type ServiceConfig struct {
	NavDelay        time.Duration // post-submission navigation delay (default: DefaultNavDelay)
	SessionTTL      time.Duration // idle time before a session is evicted (default: 30m)
	JanitorInterval time.Duration // how often to sweep idle sessions (default: 5m)
	MaxDispatches   int           // concurrent dispatch cap (default: DefaultMaxConcurrentDispatches)
	DispatchWait    time.Duration // wait for a dispatch slot (default: DefaultDispatchMaxWait)
}

const (
	defaultSessionTTL      = 30 * time.Minute
	defaultJanitorInterval = 5 * time.Minute
)

// Service owns all live wizard sessions. There are no package-level
// singletons: every piece of workflow state hangs off a Service, so
// tests and embedders get isolated instances.
type Service struct {
	client  ReportingAPI
	loader  *SchemaLoader
	limiter *DispatchLimiter
	log     *slog.Logger

	navDelay        time.Duration
	sessionTTL      time.Duration
	janitorInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a session service backed by the given reporting API.
func NewService(client ReportingAPI, log *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.NavDelay <= 0 {
		cfg.NavDelay = DefaultNavDelay
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = defaultJanitorInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		client:          client,
		loader:          NewSchemaLoader(client),
		limiter:         NewDispatchLimiter(cfg.MaxDispatches, cfg.DispatchWait),
		log:             log,
		navDelay:        cfg.NavDelay,
		sessionTTL:      cfg.SessionTTL,
		janitorInterval: cfg.JanitorInterval,
		sessions:        make(map[string]*Session),
	}
}

// CreateSession starts a new wizard session. presetInstitution, when
// non-empty, pre-selects and locks the institution for the session.
func (s *Service) CreateSession(presetInstitution string) *Session {
	sess := &Session{
		ID:   uuid.NewString(),
		View: NewReportView(s.client),
	}
	sess.Wizard = NewWizard(s.loader, s.client, WizardOptions{
		PresetInstitution: presetInstitution,
		NavDelay:          s.navDelay,
		Limiter:           s.limiter,
		Navigate: func(reportID int64) {
			sess.navTarget.Store(reportID)
		},
	})
	sess.touch(time.Now())

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Debug("wizard session created", "session_id", sess.ID)
	return sess
}

// Session looks up a live session and refreshes its idle timer.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("wizard session not found: %s", id)
	}
	sess.touch(time.Now())
	return sess, nil
}

// EndSession discards a session. Ending an unknown session is a no-op.
func (s *Service) EndSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.View.Leave()
		s.log.Debug("wizard session ended", "session_id", id)
	}
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Institutions returns the reference list of reporting institutions.
func (s *Service) Institutions(ctx context.Context) ([]reporting.Institution, error) {
	return s.client.Institutions(ctx)
}

// Drain waits for in-flight dispatches to finish, for graceful shutdown.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// StartSessionJanitor runs the idle-session sweep until ctx is cancelled.
// It sweeps immediately on start, then every JanitorInterval.
func (s *Service) StartSessionJanitor(ctx context.Context) {
	s.log.Info("session janitor started",
		"session_ttl", s.sessionTTL.String(),
		"interval", s.janitorInterval.String(),
	)

	s.sweepIdleSessions()

	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session janitor stopped")
			return
		case <-ticker.C:
			s.sweepIdleSessions()
		}
	}
}

// sweepIdleSessions evicts sessions idle past the TTL.
func (s *Service) sweepIdleSessions() {
	now := time.Now()

	s.mu.Lock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.idleSince(now) > s.sessionTTL {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.log.Info("evicted idle wizard session", "session_id", id)
	}
}

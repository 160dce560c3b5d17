// Package services provides application-level orchestration services
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/consequence"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/security"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionLimit    = errors.New("live session limit reached")
)

// SessionConfig holds the tunables of the live session registry.
type SessionConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	IdleTimeout     time.Duration
	MaxLiveSessions int
}

// VisitRequest opens a visit. Fingerprint wins over Environment when it is
// well formed.
type VisitRequest struct {
	Fingerprint string                `json:"fingerprint,omitempty"`
	Environment *behavior.Environment `json:"environment,omitempty"`
}

// VisitResult is returned when a live session starts.
type VisitResult struct {
	SessionID   string              `json:"sessionId"`
	VisitorID   string              `json:"visitorId"`
	Fingerprint string              `json:"fingerprint"`
	Token       string              `json:"token"`
	ExpiresAt   time.Time           `json:"expiresAt"`
	Returning   bool                `json:"returning"`
	VisitCount  int                 `json:"visitCount"`
	AccessLevel visitor.AccessLevel `json:"accessLevel"`
	State       consequence.State   `json:"state"`
}

// RawEvent is one interaction posted by the page. A zero Timestamp means
// the time the server received it.
type RawEvent struct {
	Type      behavior.EventType `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	ScrollY   float64            `json:"scrollY,omitempty"`
	MaxScroll float64            `json:"maxScroll,omitempty"`
	NodeID    string             `json:"nodeId,omitempty"`
	Target    string             `json:"target,omitempty"`
	Payload   map[string]any     `json:"payload,omitempty"`
}

// IngestResult reports how a batch of raw events was applied.
type IngestResult struct {
	Accepted          int      `json:"accepted"`
	Rejected          int      `json:"rejected"`
	ImpatienceEmitted int      `json:"impatienceEmitted"`
	Errors            []string `json:"errors,omitempty"`
}

// SessionView is a read-only snapshot of a live session.
type SessionView struct {
	SessionID string              `json:"sessionId"`
	VisitorID string              `json:"visitorId"`
	State     consequence.State   `json:"state"`
	Scores    behavior.Scores     `json:"scores"`
	Metrics   *behavior.Metrics   `json:"metrics,omitempty"`
	StartedAt time.Time           `json:"startedAt"`
	Tier      visitor.AccessLevel `json:"effectiveTier"`
}

// baseline holds the lifetime profile totals captured when the session
// started. Flushes add this session's contribution on top.
type baseline struct {
	totalTimeSeconds int
	impatienceEvents int
	nodes            []string
	visitCount       int
}

type liveSession struct {
	mu sync.Mutex

	id          string
	visitorID   string
	fingerprint string
	startedAt   time.Time
	lastSeen    time.Time

	collector *behavior.Collector
	engine    *consequence.Engine
	baseline  baseline

	persistedSeq int64
	dirty        bool
}

// SessionService owns the live sessions: one collector and one consequence
// engine each, ticked by the session worker and flushed to the profile store.
type SessionService struct {
	profiles   visitor.ProfileRepository
	events     visitor.EventRepository
	publisher  messaging.Publisher
	thresholds *behavior.Thresholds
	clock      behavior.Clock
	config     SessionConfig

	mu       sync.RWMutex
	sessions map[string]*liveSession

	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewSessionService creates a new session service
func NewSessionService(
	profiles visitor.ProfileRepository,
	events visitor.EventRepository,
	publisher messaging.Publisher,
	thresholds *behavior.Thresholds,
	clock behavior.Clock,
	config SessionConfig,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *SessionService {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &SessionService{
		profiles:    profiles,
		events:      events,
		publisher:   publisher,
		thresholds:  thresholds,
		clock:       clock,
		config:      config,
		sessions:    make(map[string]*liveSession),
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// StartVisit resolves the visitor profile, records the visit and opens a
// live session bound to a signed token.
func (s *SessionService) StartVisit(ctx context.Context, req VisitRequest) (*VisitResult, error) {
	marker := s.perfTracker.StartOperation("session_start", "system")
	defer marker.Complete()

	if s.config.MaxLiveSessions > 0 && s.ActiveCount() >= s.config.MaxLiveSessions {
		marker.SetError(ErrSessionLimit)
		return nil, ErrSessionLimit
	}

	fingerprint := resolveFingerprint(req)

	profile, err := s.profiles.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	if profile == nil {
		profile, err = s.profiles.Create(ctx, fingerprint)
		if err != nil {
			marker.SetError(err)
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
		s.logger.Session().Info("Created visitor profile", "visitorId", profile.ID, "fingerprint", fingerprint)
	}
	returning := profile.VisitCount > 0

	now := s.clock.Now()
	profile, err = s.profiles.RecordVisit(ctx, profile.ID, now)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to record visit: %w", err)
	}
	if profile == nil {
		marker.SetError(visitor.ErrProfileNotFound)
		return nil, visitor.ErrProfileNotFound
	}

	session := &liveSession{
		id:          security.NewSessionID(),
		visitorID:   profile.ID,
		fingerprint: fingerprint,
		startedAt:   now,
		lastSeen:    now,
		collector:   behavior.NewCollector(s.thresholds.Collector, s.clock),
		engine:      consequence.NewEngine(s.thresholds.Consequence, s.clock),
		baseline: baseline{
			totalTimeSeconds: profile.TotalTimeSeconds,
			impatienceEvents: profile.ImpatienceEvents,
			nodes:            append([]string(nil), profile.NodesViewed...),
			visitCount:       profile.VisitCount,
		},
	}

	token, err := security.IssueSessionToken(session.id, profile.ID, fingerprint, s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.mu.Lock()
	if s.config.MaxLiveSessions > 0 && len(s.sessions) >= s.config.MaxLiveSessions {
		s.mu.Unlock()
		marker.SetError(ErrSessionLimit)
		return nil, ErrSessionLimit
	}
	s.sessions[session.id] = session
	active := len(s.sessions)
	s.mu.Unlock()

	s.logger.WithSession(logging.ChannelSession, session.id, profile.ID).Info("Live session started",
		"returning", returning, "visitCount", profile.VisitCount, "active", active)

	return &VisitResult{
		SessionID:   session.id,
		VisitorID:   profile.ID,
		Fingerprint: fingerprint,
		Token:       token,
		ExpiresAt:   now.Add(s.config.TokenTTL),
		Returning:   returning,
		VisitCount:  profile.VisitCount,
		AccessLevel: profile.AccessLevel,
		State:       session.engine.State(),
	}, nil
}

func resolveFingerprint(req VisitRequest) string {
	if behavior.IsFingerprint(req.Fingerprint) {
		return req.Fingerprint
	}
	if req.Environment != nil {
		return behavior.Fingerprint(*req.Environment)
	}
	return behavior.Fingerprint(behavior.Environment{})
}

// Authenticate validates a session token and checks that it belongs to
// sessionID.
func (s *SessionService) Authenticate(token, sessionID string) (*security.SessionClaims, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, security.ErrInvalidToken
	}
	return claims, nil
}

// ValidateToken checks a session token's signature and expiry without
// binding it to a session.
func (s *SessionService) ValidateToken(token string) (*security.SessionClaims, error) {
	return security.ValidateSessionToken(token, s.config.JWTSecret)
}

func (s *SessionService) lookup(sessionID string) (*liveSession, error) {
	if !security.IsSessionID(sessionID) {
		return nil, ErrSessionNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Ingest applies a batch of raw events to a live session. Invalid events are
// rejected individually; the rest of the batch still applies.
func (s *SessionService) Ingest(ctx context.Context, sessionID string, events []RawEvent) (*IngestResult, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	result := &IngestResult{}
	for i, ev := range events {
		if err := s.apply(session, ev, result); err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, fmt.Sprintf("event %d: %s", i, err.Error()))
			continue
		}
		result.Accepted++
	}
	if result.Accepted > 0 {
		session.dirty = true
		session.lastSeen = s.clock.Now()
	}

	if result.ImpatienceEmitted > 0 {
		s.logger.WithSession(logging.ChannelBehavior, session.id, session.visitorID).Info("Impatience detected",
			"emitted", result.ImpatienceEmitted, "total", session.collector.ImpatienceCount())
	}
	s.logger.Behavior().Debug("Ingested events", "sessionId", sessionID, "accepted", result.Accepted, "rejected", result.Rejected)
	return result, nil
}

func (s *SessionService) apply(session *liveSession, ev RawEvent, result *IngestResult) error {
	switch ev.Type {
	case behavior.EventClick:
		if session.collector.RecordClick(ev.Timestamp, ev.Payload) {
			result.ImpatienceEmitted++
		}
	case behavior.EventScroll:
		session.collector.RecordScroll(ev.ScrollY, ev.MaxScroll, ev.Timestamp)
	case behavior.EventPointerMove:
		session.collector.RecordPointerMove(ev.Timestamp)
	case behavior.EventNodeFocus:
		if ev.NodeID == "" {
			return errors.New("node_focus requires nodeId")
		}
		session.collector.FocusNode(ev.NodeID, ev.Timestamp)
	case behavior.EventNodeBlur:
		if ev.NodeID == "" {
			return errors.New("node_blur requires nodeId")
		}
		session.collector.BlurNode(ev.NodeID, ev.Timestamp)
	case behavior.EventAccessRequest:
		session.collector.RecordAccessRequest(ev.Target, ev.Timestamp)
	case behavior.EventImpatience:
		return errors.New("impatience events are derived and cannot be posted")
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// TickAll runs one consequence evaluation on every live session and pushes
// the resulting state to stream subscribers. It returns the number of
// sessions ticked.
func (s *SessionService) TickAll() int {
	sessions := s.snapshot()
	for _, session := range sessions {
		s.tick(session)
	}
	return len(sessions)
}

func (s *SessionService) snapshot() []*liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*liveSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].startedAt.Before(out[j].startedAt) })
	return out
}

func (s *SessionService) tick(session *liveSession) {
	session.mu.Lock()
	now := s.clock.Now()
	scores := behavior.Score(session.collector.Snapshot(now), s.thresholds.Scoring)
	signals := session.engine.Tick(consequence.Input{
		Patience:         scores.Patience,
		Curiosity:        scores.Curiosity,
		ImpatienceCount:  session.collector.ImpatienceCount(),
		RecentImpatience: session.collector.HasRecentImpatience(now),
		VisitCount:       session.baseline.visitCount,
	})
	state := session.engine.State()
	if len(signals) > 0 {
		session.dirty = true
	}
	session.mu.Unlock()

	for _, signal := range signals {
		s.logger.WithSession(logging.ChannelConsequence, session.id, session.visitorID).Info("Consequence signal",
			"kind", signal.Kind, "status", signal.Status, "reveal", signal.Reveal)
		s.publisher.Publish(session.id, messaging.Message{Type: messaging.MessageSignal, Data: signal, At: signal.At})
	}
	if s.publisher.SubscriberCount(session.id) > 0 {
		s.publisher.Publish(session.id, messaging.Message{
			Type: messaging.MessageState,
			Data: streamState{State: state, Scores: scores},
			At:   now,
		})
	}
}

type streamState struct {
	consequence.State
	Scores behavior.Scores `json:"scores"`
}

// State returns the current consequence state and scores of a session.
func (s *SessionService) State(sessionID string) (*SessionView, error) {
	return s.view(sessionID, false)
}

// Metrics returns the session view including the full collector metrics.
func (s *SessionService) Metrics(sessionID string) (*SessionView, error) {
	return s.view(sessionID, true)
}

func (s *SessionService) view(sessionID string, withMetrics bool) (*SessionView, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	metrics := behavior.Measure(session.collector.Snapshot(s.clock.Now()), s.thresholds.Scoring)
	view := &SessionView{
		SessionID: session.id,
		VisitorID: session.visitorID,
		State:     session.engine.State(),
		Scores:    metrics.Scores,
		StartedAt: session.startedAt,
		Tier:      session.engine.EffectiveTier(),
	}
	if withMetrics {
		view.Metrics = &metrics
	}
	return view, nil
}

// Trigger applies a manual consequence to a live session.
func (s *SessionService) Trigger(sessionID string, trigger consequence.TriggerType, contentID string) (*SessionView, []consequence.Signal, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}

	session.mu.Lock()
	signals, err := session.engine.Trigger(trigger, contentID)
	if err == nil {
		session.dirty = true
	}
	session.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	s.logger.WithSession(logging.ChannelConsequence, session.id, session.visitorID).Info("Manual consequence applied",
		"trigger", trigger, "contentId", contentID, "signals", len(signals))
	for _, signal := range signals {
		s.publisher.Publish(session.id, messaging.Message{Type: messaging.MessageSignal, Data: signal, At: signal.At})
	}

	view, err := s.State(sessionID)
	if err != nil {
		return nil, nil, err
	}
	return view, signals, nil
}

// FlushAll persists every dirty live session. Failures are logged and the
// session stays dirty, so it is retried on the next cadence tick.
func (s *SessionService) FlushAll(ctx context.Context) (flushed int, failed int) {
	for _, session := range s.snapshot() {
		if ctx.Err() != nil {
			return flushed, failed
		}
		ok, err := s.flush(ctx, session, false)
		if err != nil {
			failed++
			s.logger.LogError(logging.ChannelSession, "session_flush", err, map[string]any{"sessionId": session.id})
			continue
		}
		if ok {
			flushed++
		}
	}
	return flushed, failed
}

// flush writes the session's contribution to the profile store and appends
// unpersisted significant events. It reports whether anything was written.
func (s *SessionService) flush(ctx context.Context, session *liveSession, force bool) (bool, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if !session.dirty && !force {
		return false, nil
	}

	marker := s.perfTracker.StartOperation("session_flush", session.id)
	defer marker.Complete()

	now := s.clock.Now()
	snap := session.collector.Snapshot(now)
	scores := behavior.Score(snap, s.thresholds.Scoring)

	totalTime := session.baseline.totalTimeSeconds + int(snap.TotalTime/time.Second)
	impatience := session.baseline.impatienceEvents + snap.ImpatienceEvents
	depth := snap.DeepestScroll
	tier := session.engine.EffectiveTier()

	update := visitor.ProfileUpdate{
		PatienceScore:      &scores.Patience,
		CuriosityScore:     &scores.Curiosity,
		DeepestScrollDepth: &depth,
		ImpatienceEvents:   &impatience,
		NodesViewed:        behavior.MergeNodes(session.baseline.nodes, snap.NodesExplored),
		TotalTimeSeconds:   &totalTime,
		AccessLevel:        &tier,
		LastVisit:          &now,
	}
	if err := s.profiles.Update(ctx, session.visitorID, update); err != nil {
		marker.SetError(err)
		return false, fmt.Errorf("failed to update profile %s: %w", session.visitorID, err)
	}

	pending := session.collector.SignificantSince(session.persistedSeq, s.thresholds.Collector.MaxSignificantFlush)
	if len(pending) > 0 {
		records := make([]visitor.SessionEvent, 0, len(pending))
		for _, ev := range pending {
			records = append(records, visitor.SessionEvent{
				ID:        security.GenerateULID(),
				SessionID: session.id,
				VisitorID: session.visitorID,
				Seq:       ev.Seq,
				EventType: string(ev.Type),
				EventData: ev.Payload,
				Timestamp: ev.Timestamp,
			})
		}
		if err := s.events.Append(ctx, records); err != nil {
			marker.SetError(err)
			return false, fmt.Errorf("failed to persist session events: %w", err)
		}
		session.persistedSeq = pending[len(pending)-1].Seq
	}

	// Stay dirty while significant events remain beyond this flush's cap.
	session.dirty = len(session.collector.SignificantSince(session.persistedSeq, 1)) > 0

	marker.AddMetadata("events", len(pending))
	s.logger.WithSession(logging.ChannelSession, session.id, session.visitorID).Debug("Session flushed",
		"patience", scores.Patience, "curiosity", scores.Curiosity, "tier", tier, "events", len(pending))
	return true, nil
}

// End performs the final flush of a session and removes it from the
// registry. Subscribers receive an ended message.
func (s *SessionService) End(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	view, err := s.State(sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.flush(ctx, session, true); err != nil {
		s.logger.LogError(logging.ChannelSession, "session_end_flush", err, map[string]any{"sessionId": sessionID})
		return nil, err
	}
	s.remove(sessionID)
	s.publisher.CloseSession(sessionID)

	s.logger.WithSession(logging.ChannelSession, sessionID, session.visitorID).Info("Live session ended",
		"fingerprint", session.fingerprint, "duration", s.clock.Now().Sub(session.startedAt))
	return view, nil
}

func (s *SessionService) remove(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Reap ends sessions idle for longer than the configured timeout. Sessions
// whose final flush fails are kept for the next pass.
func (s *SessionService) Reap(ctx context.Context) int {
	if s.config.IdleTimeout <= 0 {
		return 0
	}
	now := s.clock.Now()

	var reaped int
	for _, session := range s.snapshot() {
		session.mu.Lock()
		idle := now.Sub(session.lastSeen)
		session.mu.Unlock()
		if idle < s.config.IdleTimeout {
			continue
		}
		if _, err := s.End(ctx, session.id); err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				s.logger.Session().Warn("Failed to reap idle session", "sessionId", session.id, "error", err.Error())
			}
			continue
		}
		reaped++
	}
	if reaped > 0 {
		s.logger.Session().Info("Reaped idle sessions", "count", reaped, "active", s.ActiveCount())
	}
	return reaped
}

// Shutdown ends every live session with a final flush.
func (s *SessionService) Shutdown(ctx context.Context) error {
	var errs []error
	for _, session := range s.snapshot() {
		if _, err := s.End(ctx, session.id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ActiveCount returns the number of live sessions.
func (s *SessionService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

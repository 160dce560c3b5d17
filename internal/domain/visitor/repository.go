package visitor

import (
	"context"
	"time"
)

// ProfileRepository defines the operations for persisting visitor profiles.
// Lookups return nil, nil when no row matches.
type ProfileRepository interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*Profile, error)
	FindByID(ctx context.Context, id string) (*Profile, error)
	Create(ctx context.Context, fingerprint string) (*Profile, error)
	// RecordVisit increments the visit count and stamps lastVisit.
	RecordVisit(ctx context.Context, id string, at time.Time) (*Profile, error)
	Update(ctx context.Context, id string, update ProfileUpdate) error
	UpdatePromotionProbability(ctx context.Context, id string, probability float64) error
	// ListStaleByLevel returns profiles at level whose last visit is older
	// than before, oldest first.
	ListStaleByLevel(ctx context.Context, level AccessLevel, before time.Time, limit int) ([]*Profile, error)
	ListByLevels(ctx context.Context, levels []AccessLevel, limit int) ([]*Profile, error)
}

// EventRepository persists significant session events.
type EventRepository interface {
	Append(ctx context.Context, events []SessionEvent) error
	ListBySession(ctx context.Context, sessionID string) ([]SessionEvent, error)
}

// InsightRepository persists scheduled insights.
type InsightRepository interface {
	// HasUndelivered reports whether the visitor has an undelivered insight
	// of the given type.
	HasUndelivered(ctx context.Context, visitorID string, insightType InsightType) (bool, error)
	// HasGeneratedSince reports whether an insight of the given type was
	// generated for the visitor at or after since.
	HasGeneratedSince(ctx context.Context, visitorID string, insightType InsightType, since time.Time) (bool, error)
	// Insert stores the insight and reports whether a row was written; a
	// conflicting undelivered insight yields false, nil.
	Insert(ctx context.Context, insight *Insight) (bool, error)
	FindByID(ctx context.Context, id string) (*Insight, error)
	ListForVisitor(ctx context.Context, visitorID string, includeDelivered bool, limit int) ([]*Insight, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

// SignalRepository persists node signals.
type SignalRepository interface {
	Create(ctx context.Context, signal *NodeSignal) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]*NodeSignal, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Record(ctx context.Context, entry *AuditEntry) error
	ListByType(ctx context.Context, logType string, limit int) ([]*AuditEntry, error)
}

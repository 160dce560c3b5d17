package services

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/promotion"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// ClassificationResult reports the outcome of classifying one visitor.
type ClassificationResult struct {
	VisitorID     string              `json:"visitorId"`
	PreviousLevel visitor.AccessLevel `json:"previousLevel"`
	CurrentLevel  visitor.AccessLevel `json:"currentLevel"`
	LevelChanged  bool                `json:"levelChanged"`
	Reason        string              `json:"reason"`
}

// ClassifierService promotes a visitor one tier when every requirement of
// the next tier is met. It never demotes.
type ClassifierService struct {
	profiles   visitor.ProfileRepository
	audit      visitor.AuditRepository
	thresholds *behavior.Thresholds
	clock      behavior.Clock
	logger     *logging.ChanneledLogger
}

// NewClassifierService creates a new classifier service
func NewClassifierService(profiles visitor.ProfileRepository, audit visitor.AuditRepository, thresholds *behavior.Thresholds, clock behavior.Clock, logger *logging.ChanneledLogger) *ClassifierService {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &ClassifierService{
		profiles:   profiles,
		audit:      audit,
		thresholds: thresholds,
		clock:      clock,
		logger:     logger,
	}
}

// Classify evaluates a stored profile against the next tier's requirements.
func (s *ClassifierService) Classify(ctx context.Context, visitorID string) (*ClassificationResult, error) {
	start := time.Now()

	p, err := s.profiles.FindByID(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if p == nil {
		return nil, visitor.ErrProfileNotFound
	}

	result := &ClassificationResult{
		VisitorID:     p.ID,
		PreviousLevel: p.AccessLevel,
		CurrentLevel:  p.AccessLevel,
		Reason:        "No threshold crossed",
	}

	if next, ok := promotion.Qualifies(p, s.thresholds.Promotion); ok {
		if err := s.profiles.Update(ctx, p.ID, visitor.ProfileUpdate{AccessLevel: &next}); err != nil {
			return nil, fmt.Errorf("failed to promote visitor: %w", err)
		}
		result.CurrentLevel = next
		result.LevelChanged = true
		result.Reason = fmt.Sprintf("%s thresholds met: patience=%.2f, curiosity=%.2f, time=%ds, visits=%d, nodes=%d",
			next.Label(), p.PatienceScore, p.CuriosityScore, p.TotalTimeSeconds, p.VisitCount, len(p.NodesViewed))
		s.logger.Behavior().Info("Visitor promoted", "visitorId", p.ID, "from", p.AccessLevel, "to", next)
	}

	entry := &visitor.AuditEntry{
		LogType:       visitor.AuditVisitorClassification,
		TriggerSource: "behavioral_threshold",
		VisitorID:     p.ID,
		InputData: map[string]any{
			"patience_score":     p.PatienceScore,
			"curiosity_score":    p.CuriosityScore,
			"total_time_seconds": p.TotalTimeSeconds,
			"visit_count":        p.VisitCount,
			"nodes_viewed":       p.NodesViewed,
		},
		OutputData: map[string]any{
			"previous_level": result.PreviousLevel,
			"new_level":      result.CurrentLevel,
			"level_changed":  result.LevelChanged,
			"reason":         result.Reason,
		},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		CreatedAt:        s.clock.Now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.LogError(logging.ChannelBehavior, "record_classification", err, map[string]any{"visitorId": p.ID})
	}

	return result, nil
}

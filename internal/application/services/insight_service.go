package services

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

const maxInsightPage = 100

// InsightService exposes generated insights to the visitor they target.
type InsightService struct {
	profiles visitor.ProfileRepository
	insights visitor.InsightRepository
	clock    behavior.Clock
	logger   *logging.ChanneledLogger
}

// NewInsightService creates a new insight service
func NewInsightService(profiles visitor.ProfileRepository, insights visitor.InsightRepository, clock behavior.Clock, logger *logging.ChanneledLogger) *InsightService {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &InsightService{profiles: profiles, insights: insights, clock: clock, logger: logger}
}

// ListForVisitor returns the newest insights of a visitor, undelivered only
// unless includeDelivered is set.
func (s *InsightService) ListForVisitor(ctx context.Context, visitorID string, includeDelivered bool, limit int) ([]*visitor.Insight, error) {
	if limit <= 0 || limit > maxInsightPage {
		limit = maxInsightPage
	}

	p, err := s.profiles.FindByID(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if p == nil {
		return nil, visitor.ErrProfileNotFound
	}

	insights, err := s.insights.ListForVisitor(ctx, visitorID, includeDelivered, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	if insights == nil {
		insights = []*visitor.Insight{}
	}
	return insights, nil
}

// MarkDelivered flags an insight as delivered. visitorID, when given, must
// be the insight's target.
func (s *InsightService) MarkDelivered(ctx context.Context, insightID, visitorID string) (*visitor.Insight, error) {
	insight, err := s.insights.FindByID(ctx, insightID)
	if err != nil {
		return nil, fmt.Errorf("failed to load insight: %w", err)
	}
	if insight == nil || (visitorID != "" && insight.TargetVisitorID != visitorID) {
		return nil, visitor.ErrInsightNotFound
	}

	if err := s.insights.MarkDelivered(ctx, insightID, s.clock.Now()); err != nil {
		return nil, err
	}
	s.logger.Behavior().Info("Insight delivered", "insightId", insightID, "type", insight.InsightType, "visitorId", insight.TargetVisitorID)

	return s.insights.FindByID(ctx, insightID)
}

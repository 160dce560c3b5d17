package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/promotion"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/email"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
)

// Trigger sources recorded on evaluator runs.
const (
	TriggerManual   = "manual"
	TriggerCron     = "cron"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// CycleResults are the counters of one evaluator run.
type CycleResults struct {
	ProfilesProcessed             int      `json:"profilesProcessed"`
	InsightsGenerated             int      `json:"insightsGenerated"`
	StaleVisitorsProcessed        int      `json:"staleVisitorsProcessed"`
	ThresholdAlertsGenerated      int      `json:"thresholdAlertsGenerated"`
	PromotionProbabilitiesUpdated int      `json:"promotionProbabilitiesUpdated"`
	DigestsGenerated              int      `json:"digestsGenerated"`
	Errors                        []string `json:"errors"`
}

func (r *CycleResults) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// CycleSummary is the response of an evaluator run. A run with per-profile
// errors still succeeds.
type CycleSummary struct {
	Success   bool          `json:"success"`
	Trigger   string        `json:"trigger"`
	Results   CycleResults  `json:"results"`
	Duration  time.Duration `json:"durationNs"`
	Timestamp time.Time     `json:"timestamp"`
}

// PromotionService runs the tier promotion evaluator: re-engagement of stale
// visitors, promotion probabilities with threshold alerts, and signal
// digests for the top tier.
type PromotionService struct {
	profiles   visitor.ProfileRepository
	insights   visitor.InsightRepository
	signals    visitor.SignalRepository
	audit      visitor.AuditRepository
	reporter   email.Service
	thresholds *behavior.Thresholds
	clock      behavior.Clock

	// runs are serialised within the process
	mu sync.Mutex

	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewPromotionService creates the evaluator. reporter may be nil.
func NewPromotionService(
	profiles visitor.ProfileRepository,
	insights visitor.InsightRepository,
	signals visitor.SignalRepository,
	audit visitor.AuditRepository,
	reporter email.Service,
	thresholds *behavior.Thresholds,
	clock behavior.Clock,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *PromotionService {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &PromotionService{
		profiles:    profiles,
		insights:    insights,
		signals:     signals,
		audit:       audit,
		reporter:    reporter,
		thresholds:  thresholds,
		clock:       clock,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Run executes one evaluator pass. Query and per-profile failures are
// collected into the results; Run itself only fails when ctx is cancelled.
func (s *PromotionService) Run(ctx context.Context, trigger string) (*CycleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marker := s.perfTracker.StartOperation("scheduler_run", trigger)
	defer marker.Complete()

	start := s.clock.Now()
	wall := time.Now()
	th := s.thresholds.Promotion
	results := CycleResults{Errors: []string{}}
	seen := make(map[string]struct{})
	log := s.logger.WithOperation(logging.ChannelScheduler, "promotion_cycle")

	log.Info("Starting promotion cycle", "trigger", trigger)

	staleFound := s.reEngageStale(ctx, start, th, &results, seen)
	if err := ctx.Err(); err != nil {
		marker.SetError(err)
		return nil, err
	}
	nearFound := s.updateProbabilities(ctx, start, th, &results, seen)
	if err := ctx.Err(); err != nil {
		marker.SetError(err)
		return nil, err
	}
	s.digestTopTier(ctx, start, th, &results, seen)
	if err := ctx.Err(); err != nil {
		marker.SetError(err)
		return nil, err
	}

	results.ProfilesProcessed = len(seen)
	results.InsightsGenerated = results.StaleVisitorsProcessed + results.ThresholdAlertsGenerated + results.DigestsGenerated
	elapsed := time.Since(wall)

	s.recordCycle(ctx, trigger, start, elapsed, staleFound, nearFound, results)

	marker.AddMetadata("insights", results.InsightsGenerated)
	marker.AddMetadata("errors", len(results.Errors))
	log.Info("Promotion cycle complete",
		"trigger", trigger,
		"profilesProcessed", results.ProfilesProcessed,
		"insightsGenerated", results.InsightsGenerated,
		"staleVisitorsProcessed", results.StaleVisitorsProcessed,
		"thresholdAlertsGenerated", results.ThresholdAlertsGenerated,
		"promotionProbabilitiesUpdated", results.PromotionProbabilitiesUpdated,
		"digestsGenerated", results.DigestsGenerated,
		"errors", len(results.Errors),
		"duration", elapsed)

	s.report(ctx, trigger, start, elapsed, results)

	return &CycleSummary{
		Success:   true,
		Trigger:   trigger,
		Results:   results,
		Duration:  elapsed,
		Timestamp: s.clock.Now(),
	}, nil
}

func (s *PromotionService) reEngageStale(ctx context.Context, now time.Time, th behavior.PromotionThresholds, results *CycleResults, seen map[string]struct{}) int {
	stale, err := s.profiles.ListStaleByLevel(ctx, visitor.LevelAcknowledged, now.Add(-th.StaleAfter), th.StalePageSize)
	if err != nil {
		s.logger.Scheduler().Error("Stale visitor query failed", "error", err.Error())
		results.fail("stale visitors query: %v", err)
		return 0
	}
	s.logger.Scheduler().Debug("Stale acknowledged visitors found", "count", len(stale))

	for _, p := range stale {
		if ctx.Err() != nil {
			return len(stale)
		}
		seen[p.ID] = struct{}{}

		exists, err := s.insights.HasUndelivered(ctx, p.ID, visitor.InsightReEngagement)
		if err != nil {
			results.fail("re-engagement check %s: %v", p.ID, err)
			continue
		}
		if exists {
			continue
		}

		written, err := s.insights.Insert(ctx, &visitor.Insight{
			InsightType:     visitor.InsightReEngagement,
			TargetVisitorID: p.ID,
			Content:         promotion.ReEngagementContent(p.NodesViewed, th.NodePreview),
			Metadata: map[string]any{
				"last_visit":     p.LastVisit,
				"patience_score": p.PatienceScore,
				"nodes_viewed":   p.NodesViewed,
			},
			GeneratedAt: now,
		})
		if err != nil {
			results.fail("re-engagement insert %s: %v", p.ID, err)
			continue
		}
		if written {
			results.StaleVisitorsProcessed++
		}
	}
	return len(stale)
}

func (s *PromotionService) updateProbabilities(ctx context.Context, now time.Time, th behavior.PromotionThresholds, results *CycleResults, seen map[string]struct{}) int {
	candidates, err := s.profiles.ListByLevels(ctx, []visitor.AccessLevel{visitor.LevelObserver, visitor.LevelAcknowledged}, th.ProbabilityPage)
	if err != nil {
		s.logger.Scheduler().Error("Near-threshold query failed", "error", err.Error())
		results.fail("threshold query: %v", err)
		return 0
	}

	for _, p := range candidates {
		if ctx.Err() != nil {
			return len(candidates)
		}
		seen[p.ID] = struct{}{}

		probability := promotion.Probability(p, th)
		if err := s.profiles.UpdatePromotionProbability(ctx, p.ID, probability); err != nil {
			results.fail("probability update %s: %v", p.ID, err)
		} else {
			results.PromotionProbabilitiesUpdated++
		}

		if !promotion.InAlertBand(probability, th) {
			continue
		}
		exists, err := s.insights.HasUndelivered(ctx, p.ID, visitor.InsightThresholdAlert)
		if err != nil {
			results.fail("threshold alert check %s: %v", p.ID, err)
			continue
		}
		if exists {
			continue
		}

		target, _, _ := promotion.Target(p.AccessLevel, th)
		written, err := s.insights.Insert(ctx, &visitor.Insight{
			InsightType:     visitor.InsightThresholdAlert,
			TargetVisitorID: p.ID,
			Content:         promotion.ThresholdAlertContent(target, probability),
			Metadata: map[string]any{
				"current_level": p.AccessLevel,
				"target_level":  target,
				"probability":   probability,
				"metrics": map[string]any{
					"patience":  p.PatienceScore,
					"curiosity": p.CuriosityScore,
					"time":      p.TotalTimeSeconds,
				},
			},
			GeneratedAt: now,
		})
		if err != nil {
			results.fail("threshold alert insert %s: %v", p.ID, err)
			continue
		}
		if written {
			results.ThresholdAlertsGenerated++
		}
	}
	return len(candidates)
}

// digestTopTier checks then inserts per member; overlapping runs in
// separate processes can both write a digest inside the same window.
func (s *PromotionService) digestTopTier(ctx context.Context, now time.Time, th behavior.PromotionThresholds, results *CycleResults, seen map[string]struct{}) {
	members, err := s.profiles.ListByLevels(ctx, []visitor.AccessLevel{visitor.LevelConsidered}, th.DigestPageSize)
	if err != nil {
		s.logger.Scheduler().Error("Top tier query failed", "error", err.Error())
		results.fail("inner circle query: %v", err)
		return
	}
	if len(members) == 0 {
		return
	}
	for _, m := range members {
		seen[m.ID] = struct{}{}
	}

	since := now.Add(-th.DigestWindow)
	signals, err := s.signals.ListSince(ctx, since, th.SignalLimit)
	if err != nil {
		results.fail("signal query: %v", err)
		return
	}
	if len(signals) == 0 {
		return
	}

	content := promotion.DigestContent(signals, th.DigestSummary)
	summary := signals
	if len(summary) > th.DigestSummary {
		summary = summary[:th.DigestSummary]
	}

	for _, m := range members {
		if ctx.Err() != nil {
			return
		}
		exists, err := s.insights.HasGeneratedSince(ctx, m.ID, visitor.InsightSignalDigest, since)
		if err != nil {
			results.fail("digest check %s: %v", m.ID, err)
			continue
		}
		if exists {
			continue
		}
		written, err := s.insights.Insert(ctx, &visitor.Insight{
			InsightType:     visitor.InsightSignalDigest,
			TargetVisitorID: m.ID,
			Content:         content,
			Metadata: map[string]any{
				"signal_count": len(signals),
				"signals":      summary,
			},
			GeneratedAt: now,
		})
		if err != nil {
			results.fail("digest insert %s: %v", m.ID, err)
			continue
		}
		if written {
			results.DigestsGenerated++
		}
	}
}

func (s *PromotionService) recordCycle(ctx context.Context, trigger string, at time.Time, elapsed time.Duration, staleFound, nearFound int, results CycleResults) {
	entry := &visitor.AuditEntry{
		LogType:       visitor.AuditScheduledCycle,
		TriggerSource: trigger,
		InputData: map[string]any{
			"timestamp":            at,
			"stale_visitors_found": staleFound,
			"near_threshold_found": nearFound,
			"is_cron":              trigger == TriggerCron || trigger == TriggerSchedule,
		},
		OutputData: map[string]any{
			"profilesProcessed":             results.ProfilesProcessed,
			"insightsGenerated":             results.InsightsGenerated,
			"staleVisitorsProcessed":        results.StaleVisitorsProcessed,
			"thresholdAlertsGenerated":      results.ThresholdAlertsGenerated,
			"promotionProbabilitiesUpdated": results.PromotionProbabilitiesUpdated,
			"digestsGenerated":              results.DigestsGenerated,
			"errors":                        results.Errors,
		},
		ProcessingTimeMs: elapsed.Milliseconds(),
		CreatedAt:        s.clock.Now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.LogError(logging.ChannelScheduler, "record_cycle", err, map[string]any{"trigger": trigger})
	}
}

func (s *PromotionService) report(ctx context.Context, trigger string, at time.Time, elapsed time.Duration, results CycleResults) {
	if s.reporter == nil {
		return
	}
	err := s.reporter.SendCycleReport(ctx, email.CycleReport{
		Trigger:                       trigger,
		RanAt:                         at,
		Duration:                      elapsed,
		ProfilesProcessed:             results.ProfilesProcessed,
		InsightsGenerated:             results.InsightsGenerated,
		StaleVisitorsProcessed:        results.StaleVisitorsProcessed,
		ThresholdAlertsGenerated:      results.ThresholdAlertsGenerated,
		PromotionProbabilitiesUpdated: results.PromotionProbabilitiesUpdated,
		DigestsGenerated:              results.DigestsGenerated,
		Errors:                        results.Errors,
	})
	if err != nil {
		s.logger.Scheduler().Warn("Cycle report not sent", "error", err.Error())
	}
}

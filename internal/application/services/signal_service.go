package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// ErrInvalidSignal is returned for signals missing a node or type.
var ErrInvalidSignal = errors.New("invalid node signal")

// SignalRequest records a cross-visitor signal on a content node.
type SignalRequest struct {
	NodeID         string         `json:"nodeId"`
	NodeName       string         `json:"nodeName"`
	SignalType     string         `json:"signalType"`
	SignalStrength float64        `json:"signalStrength"`
	Message        string         `json:"message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SignalService records node signals and reads back recent ones for digests.
type SignalService struct {
	signals visitor.SignalRepository
	clock   behavior.Clock
	logger  *logging.ChanneledLogger
}

// NewSignalService creates a new signal service
func NewSignalService(signals visitor.SignalRepository, clock behavior.Clock, logger *logging.ChanneledLogger) *SignalService {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &SignalService{signals: signals, clock: clock, logger: logger}
}

// Record validates and stores a signal. Strength is clamped to [0,1]; the
// node name defaults to the node id.
func (s *SignalService) Record(ctx context.Context, req SignalRequest) (*visitor.NodeSignal, error) {
	nodeID := strings.TrimSpace(req.NodeID)
	signalType := strings.TrimSpace(req.SignalType)
	if nodeID == "" || signalType == "" {
		return nil, fmt.Errorf("%w: nodeId and signalType are required", ErrInvalidSignal)
	}
	name := strings.TrimSpace(req.NodeName)
	if name == "" {
		name = nodeID
	}
	signal := &visitor.NodeSignal{
		NodeID:         nodeID,
		NodeName:       name,
		SignalType:     signalType,
		SignalStrength: behavior.Clamp01(req.SignalStrength),
		Message:        req.Message,
		Metadata:       req.Metadata,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.signals.Create(ctx, signal); err != nil {
		return nil, fmt.Errorf("failed to record signal: %w", err)
	}

	s.logger.Behavior().Info("Node signal recorded", "signalId", signal.ID, "nodeId", nodeID, "type", signalType)
	return signal, nil
}

// Recent returns signals created within window, newest first.
func (s *SignalService) Recent(ctx context.Context, window time.Duration, limit int) ([]*visitor.NodeSignal, error) {
	return s.signals.ListSince(ctx, s.clock.Now().Add(-window), limit)
}

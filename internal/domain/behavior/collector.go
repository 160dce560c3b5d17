package behavior

import (
	"math"
	"sort"
	"time"
)

// EventType names a raw or derived interaction event.
type EventType string

const (
	EventClick         EventType = "click"
	EventScroll        EventType = "scroll"
	EventPointerMove   EventType = "pointer_move"
	EventNodeFocus     EventType = "node_focus"
	EventNodeBlur      EventType = "node_blur"
	EventImpatience    EventType = "impatience"
	EventAccessRequest EventType = "access_request"
)

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventClick, EventScroll, EventPointerMove, EventNodeFocus, EventNodeBlur, EventImpatience, EventAccessRequest:
		return true
	}
	return false
}

// IsSignificant reports whether events of this type are persisted on flush.
func (t EventType) IsSignificant() bool {
	return t == EventImpatience || t == EventNodeFocus || t == EventAccessRequest
}

// Event is an immutable entry in the collector's buffer.
type Event struct {
	Seq       int64          `json:"seq"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type scrollSample struct {
	y  float64
	at time.Time
}

// Collector accumulates the interaction state of one live session. It is not
// safe for concurrent use; the owning session serialises access.
type Collector struct {
	cfg   CollectorThresholds
	clock Clock

	startedAt time.Time
	lastSeen  time.Time

	clicks          []time.Time
	pendingClicks   []time.Time
	impatienceCount int
	lastImpatience  time.Time

	scrolls        []scrollSample
	deepestScroll  float64
	scrollVelocity float64

	lastMove       time.Time
	stillnessStart time.Time
	stillness      time.Duration

	nodes      map[string]struct{}
	nodeOrder  []string
	dwellStart map[string]time.Time
	dwell      map[string]time.Duration

	events []Event
	seq    int64
}

// NewCollector starts collecting at the clock's current time.
func NewCollector(cfg CollectorThresholds, clock Clock) *Collector {
	if clock == nil {
		clock = SystemClock{}
	}
	now := clock.Now()
	return &Collector{
		cfg:            cfg,
		clock:          clock,
		startedAt:      now,
		lastSeen:       now,
		lastMove:       now,
		stillnessStart: now,
		nodes:          make(map[string]struct{}),
		dwellStart:     make(map[string]time.Time),
		dwell:          make(map[string]time.Duration),
	}
}

// observe resolves the timestamp of an incoming event. A zero value means
// "now"; timestamps never move backwards within a collector.
func (c *Collector) observe(at time.Time) time.Time {
	if at.IsZero() {
		at = c.clock.Now()
	}
	if at.Before(c.lastSeen) {
		at = c.lastSeen
	}
	c.lastSeen = at
	return at
}

// RecordClick registers a click and reports whether it tipped the recent
// burst into an impatience event. Only clicks since the previous impatience
// event count toward the next one.
func (c *Collector) RecordClick(at time.Time, payload map[string]any) bool {
	at = c.observe(at)

	c.clicks = append(c.clicks, at)
	if len(c.clicks) > c.cfg.MaxClickSamples {
		c.clicks = c.clicks[len(c.clicks)-c.cfg.MaxClickSamples:]
	}

	cutoff := at.Add(-c.cfg.ImpatienceWindow)
	pending := c.pendingClicks[:0]
	for _, t := range c.pendingClicks {
		if t.After(cutoff) {
			pending = append(pending, t)
		}
	}
	c.pendingClicks = append(pending, at)

	c.record(EventClick, payload, at)

	if len(c.pendingClicks) <= c.cfg.ImpatienceClicks {
		return false
	}

	burst := len(c.pendingClicks)
	c.pendingClicks = c.pendingClicks[:0]
	c.impatienceCount++
	c.lastImpatience = at
	c.record(EventImpatience, map[string]any{"clicks": burst}, at)
	return true
}

// RecordScroll registers a scroll position. maxScroll is the scrollable
// distance of the page; a non-positive value yields depth 0.
func (c *Collector) RecordScroll(scrollY, maxScroll float64, at time.Time) {
	at = c.observe(at)

	if math.IsNaN(scrollY) || math.IsInf(scrollY, 0) {
		scrollY = 0
	}
	scrollY = math.Max(0, scrollY)

	c.scrolls = append(c.scrolls, scrollSample{y: scrollY, at: at})
	if len(c.scrolls) > c.cfg.MaxScrollSamples {
		c.scrolls = c.scrolls[len(c.scrolls)-c.cfg.MaxScrollSamples:]
	}

	if len(c.scrolls) > 2 {
		n := c.cfg.VelocitySamples
		if n > len(c.scrolls) {
			n = len(c.scrolls)
		}
		recent := c.scrolls[len(c.scrolls)-n:]
		first, last := recent[0], recent[len(recent)-1]
		elapsed := last.at.Sub(first.at)
		if elapsed > 0 {
			c.scrollVelocity = math.Abs(last.y-first.y) / (float64(elapsed) / float64(time.Millisecond))
		} else {
			c.scrollVelocity = 0
		}
	}

	depth := 0.0
	if maxScroll > 0 && !math.IsInf(maxScroll, 0) {
		depth = clamp01(scrollY / maxScroll)
	}
	if depth > c.deepestScroll {
		c.deepestScroll = depth
	}
}

// RecordPointerMove registers pointer movement. Moves closer together than
// the debounce interval are ignored; a gap longer than the stillness gap is
// credited as stillness.
func (c *Collector) RecordPointerMove(at time.Time) {
	at = c.observe(at)

	gap := at.Sub(c.lastMove)
	if gap <= c.cfg.MoveDebounce {
		return
	}
	if gap > c.cfg.StillnessGap {
		c.stillness += at.Sub(c.stillnessStart)
	}
	c.stillnessStart = at
	c.lastMove = at
}

// FocusNode starts a dwell timer on a content node.
func (c *Collector) FocusNode(nodeID string, at time.Time) {
	if nodeID == "" {
		return
	}
	at = c.observe(at)

	if _, seen := c.nodes[nodeID]; !seen {
		c.nodes[nodeID] = struct{}{}
		c.nodeOrder = append(c.nodeOrder, nodeID)
	}
	c.dwellStart[nodeID] = at
	c.record(EventNodeFocus, map[string]any{"nodeId": nodeID}, at)
}

// BlurNode stops the dwell timer on a content node. A blur without a
// matching focus is ignored.
func (c *Collector) BlurNode(nodeID string, at time.Time) {
	at = c.observe(at)

	start, ok := c.dwellStart[nodeID]
	if !ok {
		return
	}
	elapsed := at.Sub(start)
	c.dwell[nodeID] += elapsed
	delete(c.dwellStart, nodeID)
	c.record(EventNodeBlur, map[string]any{"nodeId": nodeID, "dwellTime": elapsed.Milliseconds()}, at)
}

// RecordAccessRequest notes that the visitor asked for gated content.
func (c *Collector) RecordAccessRequest(target string, at time.Time) {
	at = c.observe(at)
	c.record(EventAccessRequest, map[string]any{"target": target}, at)
}

func (c *Collector) record(t EventType, payload map[string]any, at time.Time) {
	c.seq++
	c.events = append(c.events, Event{Seq: c.seq, Type: t, Payload: payload, Timestamp: at})
	if len(c.events) > c.cfg.MaxEvents {
		keep := c.cfg.MaxEvents / 2
		pruned := make([]Event, keep)
		copy(pruned, c.events[len(c.events)-keep:])
		c.events = pruned
	}
}

// HasRecentImpatience reports whether an impatience event was emitted within
// the recent-impatience window ending at now.
func (c *Collector) HasRecentImpatience(now time.Time) bool {
	if c.impatienceCount == 0 {
		return false
	}
	return now.Sub(c.lastImpatience) < c.cfg.RecentImpatience
}

// ImpatienceCount returns the number of impatience events emitted so far.
func (c *Collector) ImpatienceCount() int { return c.impatienceCount }

// Events returns a copy of the buffered events.
func (c *Collector) Events() []Event {
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// SignificantSince returns up to limit buffered significant events with a
// sequence number greater than cursor, oldest first.
func (c *Collector) SignificantSince(cursor int64, limit int) []Event {
	var out []Event
	for _, e := range c.events {
		if e.Seq <= cursor || !e.Type.IsSignificant() {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Snapshot captures the collector counters at now.
func (c *Collector) Snapshot(now time.Time) Snapshot {
	if now.Before(c.lastSeen) {
		now = c.lastSeen
	}
	total := now.Sub(c.startedAt)

	var avg time.Duration
	if len(c.clicks) > 1 {
		span := c.clicks[len(c.clicks)-1].Sub(c.clicks[0])
		avg = span / time.Duration(len(c.clicks)-1)
	}

	stillness := 0.0
	if total > 0 {
		stillness = clamp01(float64(c.stillness) / float64(total))
	}

	var maxDwell time.Duration
	dwell := make(map[string]time.Duration, len(c.dwell))
	for node, d := range c.dwell {
		dwell[node] = d
		if d > maxDwell {
			maxDwell = d
		}
	}

	nodes := make([]string, len(c.nodeOrder))
	copy(nodes, c.nodeOrder)

	return Snapshot{
		AvgClickInterval:  avg,
		ClickCount:        len(c.clicks),
		ImpatienceEvents:  c.impatienceCount,
		StillnessFraction: stillness,
		NodesExplored:     nodes,
		DeepestScroll:     c.deepestScroll,
		ScrollVelocity:    c.scrollVelocity,
		DwellTimes:        dwell,
		MaxDwell:          maxDwell,
		TotalTime:         total,
	}
}

// NodesExplored returns the distinct nodes focused so far in first-seen order.
func (c *Collector) NodesExplored() []string {
	nodes := make([]string, len(c.nodeOrder))
	copy(nodes, c.nodeOrder)
	return nodes
}

// MergeNodes returns the sorted union of two node sets.
func MergeNodes(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, n := range a {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	for _, n := range b {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

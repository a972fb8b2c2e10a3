package spending

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pkgerrors "govern/pkg/errors"
)

// CheckResult is the gate's answer for one estimated spend.
type CheckResult struct {
	Allowed          bool   `json:"allowed"`
	RequiresApproval bool   `json:"requiresApproval"`
	Reason           string `json:"reason,omitempty"`
}

// Service enforces the caps. Check and Record for the same (actor, tool) are
// serialized on a per-key lock so a concurrent check cannot read a window
// sum that misses an in-flight record (the double-spend race).
type Service struct {
	caps   Caps
	store  Store
	clock  func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func New(caps Caps, store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "spending store is required")
	}
	svc := &Service{
		caps:   caps,
		store:  store,
		clock:  time.Now,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) keyLock(actor, tool string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := actor + "\x00" + tool
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// Check evaluates an estimated spend against the rolling UTC-calendar day,
// week, and month windows plus the per-tool limit. It denies when any
// window would exceed its cap, and flags approval when the estimate reaches
// the approval threshold without being denied.
func (s *Service) Check(ctx context.Context, actor, tool string, estimatedCostCents int64) (CheckResult, error) {
	if estimatedCostCents < 0 {
		return CheckResult{}, pkgerrors.New(pkgerrors.CodeBadRequest, "estimated cost must not be negative")
	}

	lock := s.keyLock(actor, tool)
	lock.Lock()
	defer lock.Unlock()

	return s.checkLocked(ctx, actor, tool, estimatedCostCents)
}

// CheckAndRecord evaluates the spend and, when allowed, records it inside
// the same critical section. This is the path for in-process callers: a
// separate Check followed by Record leaves a window where a concurrent
// caller can pass its own check against the stale sum.
func (s *Service) CheckAndRecord(ctx context.Context, actor, tool string, costCents int64) (CheckResult, error) {
	if costCents < 0 {
		return CheckResult{}, pkgerrors.New(pkgerrors.CodeBadRequest, "cost must not be negative")
	}

	lock := s.keyLock(actor, tool)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.checkLocked(ctx, actor, tool, costCents)
	if err != nil || !result.Allowed {
		return result, err
	}

	record := Record{
		Actor:     actor,
		Tool:      tool,
		CostCents: costCents,
		Timestamp: s.clock().UTC(),
	}
	if err := s.store.Append(ctx, record); err != nil {
		return CheckResult{}, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "append spending record")
	}
	return result, nil
}

func (s *Service) checkLocked(ctx context.Context, actor, tool string, estimatedCostCents int64) (CheckResult, error) {
	now := s.clock().UTC()
	windows := []struct {
		name  string
		since time.Time
		cap   int64
	}{
		{"daily", startOfDay(now), s.caps.DailyCapCents},
		{"weekly", startOfWeek(now), s.caps.WeeklyCapCents},
		{"monthly", startOfMonth(now), s.caps.MonthlyCapCents},
	}

	for _, window := range windows {
		if window.cap <= 0 {
			continue
		}
		spent, err := s.store.SumSince(ctx, actor, tool, window.since)
		if err != nil {
			return CheckResult{}, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "sum spending window")
		}
		if spent+estimatedCostCents > window.cap {
			return CheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("%s cap exceeded: %d + %d > %d cents", window.name, spent, estimatedCostCents, window.cap),
			}, nil
		}
	}

	if toolCap, ok := s.caps.PerToolDailyCapCents[tool]; ok && toolCap > 0 {
		spent, err := s.store.SumToolSince(ctx, tool, startOfDay(now))
		if err != nil {
			return CheckResult{}, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "sum tool spending window")
		}
		if spent+estimatedCostCents > toolCap {
			return CheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("tool %s daily cap exceeded: %d + %d > %d cents", tool, spent, estimatedCostCents, toolCap),
			}, nil
		}
	}

	result := CheckResult{Allowed: true}
	if s.caps.ApprovalThresholdCents > 0 && estimatedCostCents >= s.caps.ApprovalThresholdCents {
		result.RequiresApproval = true
		result.Reason = fmt.Sprintf("estimate %d cents meets approval threshold %d", estimatedCostCents, s.caps.ApprovalThresholdCents)
	}
	return result, nil
}

// Record appends real spend after execution.
func (s *Service) Record(ctx context.Context, actor, tool string, costCents int64) error {
	if costCents < 0 {
		return pkgerrors.New(pkgerrors.CodeBadRequest, "cost must not be negative")
	}

	lock := s.keyLock(actor, tool)
	lock.Lock()
	defer lock.Unlock()

	record := Record{
		Actor:     actor,
		Tool:      tool,
		CostCents: costCents,
		Timestamp: s.clock().UTC(),
	}
	if err := s.store.Append(ctx, record); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "append spending record")
	}

	s.logger.Debug("spend recorded", "actor", actor, "tool", tool, "cost_cents", costCents)
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek is the preceding Monday midnight UTC.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

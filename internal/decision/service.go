package decision

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"govern/internal/audit"
	"govern/internal/decision/metrics"
	"govern/internal/ledger"
	pkgerrors "govern/pkg/errors"
)

// Approvals answers whether an approval record exists for an action
// instance. Wired to the approval guard.
type Approvals interface {
	Granted(ctx context.Context, action, callID string) (bool, error)
}

// Receipts records decisions in the receipt ledger.
type Receipts interface {
	RecordAction(ctx context.Context, record ledger.ActionRecord) (ledger.Receipt, error)
}

// CoverageWriter logs one observed (action, decision, code) triple. Wired to
// the coverage log during policy test runs; nil in production.
type CoverageWriter interface {
	RecordDecision(action string, outcome Outcome, code string) error
}

// EvaluateRequest is one governed-action evaluation.
type EvaluateRequest struct {
	Action       string
	Actor        string
	CallID       string
	Capabilities []string
	Attributes   map[string]any
}

// Service wraps the pure engine with the recording side: approval lookup,
// coverage logging, receipt recording, audit events, metrics, and tracing.
// The engine itself stays side-effect free.
type Service struct {
	engine    *Engine
	approvals Approvals
	receipts  Receipts
	coverage  CoverageWriter
	publisher *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithApprovals(approvals Approvals) Option {
	return func(s *Service) { s.approvals = approvals }
}

func WithCoverageWriter(w CoverageWriter) Option {
	return func(s *Service) { s.coverage = w }
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(engine *Engine, receipts Receipts, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "decision engine is required")
	}
	if receipts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "receipt recorder is required")
	}

	svc := &Service{
		engine:   engine,
		receipts: receipts,
		logger:   slog.Default(),
		tracer:   otel.Tracer("govern/decision"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Evaluate classifies the action and records the outcome as a receipt. The
// decision itself is ordinary data: deny and approval-required outcomes are
// not errors. A receipt persistence failure is an error; an audit system
// that silently drops records is broken.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (Decision, ledger.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "decision.Evaluate",
		trace.WithAttributes(
			attribute.String("govern.action", req.Action),
			attribute.String("govern.actor", req.Actor),
		))
	defer span.End()

	start := time.Now()

	input := Input{
		Capabilities: req.Capabilities,
		Attributes:   req.Attributes,
	}
	if s.approvals != nil && req.CallID != "" {
		granted, err := s.approvals.Granted(ctx, req.Action, req.CallID)
		if err != nil {
			return Decision{}, ledger.Receipt{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "approval lookup")
		}
		input.ApprovalGranted = granted
	}

	d := s.engine.Evaluate(req.Action, input)
	span.SetAttributes(
		attribute.String("govern.outcome", string(d.Outcome)),
		attribute.String("govern.code", d.Code),
	)

	if s.coverage != nil {
		if err := s.coverage.RecordDecision(req.Action, d.Outcome, d.Code); err != nil {
			return Decision{}, ledger.Receipt{}, err
		}
	}

	receipt, err := s.receipts.RecordAction(ctx, ledger.ActionRecord{
		ActionRef: req.Action,
		Actor:     req.Actor,
		CallID:    req.CallID,
		Result:    string(d.Outcome) + "/" + d.Code,
	})
	if err != nil {
		return Decision{}, ledger.Receipt{}, err
	}

	s.metrics.IncrementOutcome(string(d.Outcome), d.Code)
	s.metrics.ObserveEvaluateLatency(time.Since(start))

	s.publisher.Emit(audit.Event{
		Category:  audit.CategoryDecision,
		Actor:     req.Actor,
		Action:    req.Action,
		Decision:  string(d.Outcome),
		Code:      d.Code,
		Reason:    d.Reason,
		ReceiptID: receipt.ID,
		CallID:    req.CallID,
	})

	s.logger.Info("action evaluated",
		"action", req.Action,
		"actor", req.Actor,
		"outcome", d.Outcome,
		"code", d.Code,
		"receipt_id", receipt.ID,
	)
	return d, receipt, nil
}

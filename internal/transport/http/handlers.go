package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"govern/internal/decision"
	"govern/internal/guard/approval"
	"govern/internal/guard/idempotency"
	"govern/internal/guard/spending"
	"govern/internal/ledger"
	pkgerrors "govern/pkg/errors"
)

// Handler is the thin HTTP layer over the governance services.
type Handler struct {
	decisions *decision.Service
	spending  *spending.Service
	approvals *approval.Service
	receipts  *ledger.Ledger
	idem      *idempotency.Guard
}

func NewHandler(decisions *decision.Service, spend *spending.Service, approvals *approval.Service, receipts *ledger.Ledger, idem *idempotency.Guard) *Handler {
	return &Handler{
		decisions: decisions,
		spending:  spend,
		approvals: approvals,
		receipts:  receipts,
		idem:      idem,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type evaluateRequest struct {
	Action       string         `json:"action"`
	Actor        string         `json:"actor"`
	CallID       string         `json:"callId"`
	Capabilities []string       `json:"capabilities"`
	Attributes   map[string]any `json:"attributes"`
}

type evaluateResponse struct {
	Outcome   string `json:"outcome"`
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	ReceiptID string `json:"receiptId"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.Wrap(err, pkgerrors.CodeBadRequest, "decode evaluate request"))
		return
	}
	if req.Action == "" || req.Actor == "" {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "action and actor are required"))
		return
	}

	d, receipt, err := h.decisions.Evaluate(r.Context(), decision.EvaluateRequest{
		Action:       req.Action,
		Actor:        req.Actor,
		CallID:       req.CallID,
		Capabilities: req.Capabilities,
		Attributes:   req.Attributes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Outcome:   string(d.Outcome),
		Code:      d.Code,
		Reason:    d.Reason,
		ReceiptID: receipt.ID,
	})
}

type spendingCheckRequest struct {
	Actor              string `json:"actor"`
	Tool               string `json:"tool"`
	EstimatedCostCents int64  `json:"estimatedCostCents"`
}

func (h *Handler) handleSpendingCheck(w http.ResponseWriter, r *http.Request) {
	var req spendingCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.Wrap(err, pkgerrors.CodeBadRequest, "decode spending check"))
		return
	}

	result, err := h.spending.Check(r.Context(), req.Actor, req.Tool, req.EstimatedCostCents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type spendingRecordRequest struct {
	Actor     string `json:"actor"`
	Tool      string `json:"tool"`
	CostCents int64  `json:"costCents"`

	// OperationID, when set, dedupes retried submissions of the same spend.
	OperationID string `json:"operationId,omitempty"`
}

func (h *Handler) handleSpendingRecord(w http.ResponseWriter, r *http.Request) {
	var req spendingRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.Wrap(err, pkgerrors.CodeBadRequest, "decode spending record"))
		return
	}

	record := func(ctx context.Context) error {
		return h.spending.Record(ctx, req.Actor, req.Tool, req.CostCents)
	}

	var err error
	if req.OperationID != "" {
		err = h.idem.Run(r.Context(), "spend:"+req.OperationID, record)
	} else {
		err = record(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type grantApprovalRequest struct {
	Action        string `json:"action"`
	CallID        string `json:"callId"`
	Approver      string `json:"approver"`
	Code          string `json:"code"`
	ApproverToken string `json:"approverToken,omitempty"`
}

func (h *Handler) handleGrantApproval(w http.ResponseWriter, r *http.Request) {
	var req grantApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.Wrap(err, pkgerrors.CodeBadRequest, "decode approval grant"))
		return
	}

	if err := h.approvals.VerifyApprover(req.ApproverToken); err != nil {
		writeError(w, err)
		return
	}
	if err := h.approvals.Grant(r.Context(), req.Action, req.CallID, req.Approver, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "granted"})
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var receipts []ledger.Receipt
	switch {
	case q.Get("actor") != "":
		receipts = h.receipts.ByActor(q.Get("actor"))
	case q.Get("action") != "":
		receipts = h.receipts.ByAction(q.Get("action"))
	case q.Get("callId") != "":
		receipts = h.receipts.ByCallID(q.Get("callId"))
	case q.Get("from") != "" && q.Get("to") != "":
		from, to, err := parseRange(q.Get("from"), q.Get("to"))
		if err != nil {
			writeError(w, err)
			return
		}
		receipts = h.receipts.ByTimeRange(from, to)
	default:
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "one of actor, action, callId, or from/to is required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(receipts),
		"receipts": receipts,
	})
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, ok := h.receipts.ByID(chi.URLParam(r, "receiptID"))
	if !ok {
		writeError(w, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found"))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.receipts.ExportAuditReport(from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(err, pkgerrors.CodeBadRequest, "parse from timestamp")
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(err, pkgerrors.CodeBadRequest, "parse to timestamp")
	}
	return from, to, nil
}

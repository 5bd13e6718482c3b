// Package handler exposes the tracking engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"proctrack/internal/assignment"
	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/eta"
	"proctrack/internal/tracking/models"
	"proctrack/internal/tracking/service"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/platform/httputil"
	"proctrack/pkg/platform/middleware/admin"
	"proctrack/pkg/platform/middleware/auth"
	request "proctrack/pkg/platform/middleware/request"
	"proctrack/pkg/requestcontext"
)

// Engine is the subset of the tracking engine the transport calls.
type Engine interface {
	Create(ctx context.Context, actor id.Actor, req service.CreateRequest) (*models.Transaction, error)
	Get(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error)
	GetByReference(ctx context.Context, ref string) (*models.Transaction, error)
	Timeline(ctx context.Context, txnID id.TransactionID) ([]*models.Action, error)
	Workflow(ctx context.Context, txn *models.Transaction) (*catalogmodels.Workflow, error)
	Endorse(ctx context.Context, actor id.Actor, txnID id.TransactionID, toOffice id.OfficeID, remarks string) (*service.EndorseResult, error)
	Receive(ctx context.Context, actor id.Actor, txnID id.TransactionID, remarks string) (*models.Transaction, *models.Action, error)
	Complete(ctx context.Context, actor id.Actor, txnID id.TransactionID, remarks string) (*models.Transaction, *models.Action, error)
	Hold(ctx context.Context, actor id.Actor, txnID id.TransactionID) (*models.Transaction, error)
	Resume(ctx context.Context, actor id.Actor, txnID id.TransactionID) (*models.Transaction, error)
	Cancel(ctx context.Context, actor id.Actor, txnID id.TransactionID) (*models.Transaction, error)
}

// Backfiller repairs legacy and unassigned documents.
type Backfiller interface {
	BackfillOffices(ctx context.Context) (assignment.BackfillReport, error)
	BackfillWorkflows(ctx context.Context) (assignment.BackfillReport, error)
}

// Sweeper runs one overdue sweep on demand.
type Sweeper interface {
	Run(ctx context.Context) (eta.SweepReport, error)
}

// Handler serves the transaction routes and the admin maintenance routes.
type Handler struct {
	engine     Engine
	backfill   Backfiller
	sweeper    Sweeper
	calculator *eta.Calculator
	severity   eta.SeverityPolicy
	logger     *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithSeverityPolicy(p eta.SeverityPolicy) Option {
	return func(h *Handler) {
		h.severity = p
	}
}

func New(engine Engine, backfill Backfiller, sweeper Sweeper, calculator *eta.Calculator, opts ...Option) *Handler {
	h := &Handler{
		engine:     engine,
		backfill:   backfill,
		sweeper:    sweeper,
		calculator: calculator,
		severity:   eta.SeverityPolicy{WarningMaxDays: eta.DefaultWarningMaxDays},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.calculator == nil {
		h.calculator = eta.NewCalculator(nil, eta.DefaultIdleThresholdDays)
	}
	return h
}

// Register mounts the routes behind bearer authentication.
func (h *Handler) Register(r chi.Router, validator auth.TokenValidator) {
	r.Group(func(r chi.Router) {
		r.Use(chimw.Recoverer)
		r.Use(request.RequestID)
		r.Use(request.Time)
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(auth.RequireAuth(validator, h.logger))
		h.Routes(r)
	})
}

// Routes adds the handlers without middleware. Callers must place an actor
// in the request context.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/by-reference/{reference}", h.handleGetByReference)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/actions", h.handleTimeline)
			r.Post("/endorse", h.handleEndorse)
			r.Post("/receive", h.handleReceive)
			r.Post("/complete", h.handleComplete)
			r.Post("/hold", h.handleHold)
			r.Post("/resume", h.handleResume)
			r.Post("/cancel", h.handleCancel)
		})
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdmin(h.logger))
		r.Post("/backfill/offices", h.handleBackfillOffices)
		r.Post("/backfill/workflows", h.handleBackfillWorkflows)
		r.Post("/sweeps/overdue", h.handleSweep)
	})
}

type createRequest struct {
	Category           string  `json:"category"`
	FundType           string  `json:"fund_type"`
	Continuation       bool    `json:"continuation"`
	RequestingOfficeID *string `json:"requesting_office_id"`
	Remarks            string  `json:"remarks"`
}

type endorseRequest struct {
	ToOfficeID string `json:"to_office_id"`
	Remarks    string `json:"remarks"`
}

type remarksRequest struct {
	Remarks string `json:"remarks"`
}

type deviationResponse struct {
	Actual   id.OfficeID  `json:"actual_office_id"`
	Expected *id.OfficeID `json:"expected_office_id,omitempty"`
}

type transactionResponse struct {
	*models.Transaction
	Location      string             `json:"location"`
	Stage         models.Stage       `json:"stage"`
	OutOfWorkflow bool               `json:"out_of_workflow"`
	ETA           *eta.Summary       `json:"eta,omitempty"`
	Deviation     *deviationResponse `json:"deviation,omitempty"`
}

type transitionResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Action      *models.Action      `json:"action,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createRequest](w, r, h.logger)
	if !ok {
		return
	}
	category, err := id.ParseCategory(req.Category)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	create := service.CreateRequest{
		Category:     category,
		FundType:     req.FundType,
		Continuation: req.Continuation,
		Remarks:      req.Remarks,
	}
	if req.RequestingOfficeID != nil {
		officeID, err := id.ParseOfficeID(*req.RequestingOfficeID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid requesting office"))
			return
		}
		create.RequestingOfficeID = &officeID
	}

	txn, err := h.engine.Create(ctx, requestcontext.Actor(ctx), create)
	if err != nil {
		h.writeError(ctx, w, "create", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.present(ctx, txn, false))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txnID, ok := parseTransactionID(w, r)
	if !ok {
		return
	}
	txn, err := h.engine.Get(ctx, txnID)
	if err != nil {
		h.writeError(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.present(ctx, txn, true))
}

func (h *Handler) handleGetByReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txn, err := h.engine.GetByReference(ctx, chi.URLParam(r, "reference"))
	if err != nil {
		h.writeError(ctx, w, "get_by_reference", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.present(ctx, txn, true))
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txnID, ok := parseTransactionID(w, r)
	if !ok {
		return
	}
	actions, err := h.engine.Timeline(ctx, txnID)
	if err != nil {
		h.writeError(ctx, w, "timeline", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handler) handleEndorse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txnID, ok := parseTransactionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[endorseRequest](w, r, h.logger)
	if !ok {
		return
	}
	to, err := id.ParseOfficeID(req.ToOfficeID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid destination office"))
		return
	}

	res, err := h.engine.Endorse(ctx, requestcontext.Actor(ctx), txnID, to, req.Remarks)
	if err != nil {
		h.writeError(ctx, w, "endorse", err)
		return
	}
	out := transitionResponse{Transaction: h.present(ctx, res.Transaction, false), Action: res.Action}
	if res.OutOfWorkflow != nil {
		out.Transaction.Deviation = &deviationResponse{Actual: res.OutOfWorkflow.Actual, Expected: res.OutOfWorkflow.Expected}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	h.ledgerTransition(w, r, "receive", h.engine.Receive)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.ledgerTransition(w, r, "complete", h.engine.Complete)
}

type ledgerFunc func(ctx context.Context, actor id.Actor, txnID id.TransactionID, remarks string) (*models.Transaction, *models.Action, error)

func (h *Handler) ledgerTransition(w http.ResponseWriter, r *http.Request, op string, fn ledgerFunc) {
	ctx := r.Context()
	txnID, ok := parseTransactionID(w, r)
	if !ok {
		return
	}
	var remarks string
	if r.ContentLength != 0 {
		req, ok := httputil.Decode[remarksRequest](w, r, h.logger)
		if !ok {
			return
		}
		remarks = req.Remarks
	}
	txn, action, err := fn(ctx, requestcontext.Actor(ctx), txnID, remarks)
	if err != nil {
		h.writeError(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transitionResponse{Transaction: h.present(ctx, txn, false), Action: action})
}

type statusFunc func(ctx context.Context, actor id.Actor, txnID id.TransactionID) (*models.Transaction, error)

func (h *Handler) handleHold(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, "hold", h.engine.Hold)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, "resume", h.engine.Resume)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, "cancel", h.engine.Cancel)
}

func (h *Handler) statusChange(w http.ResponseWriter, r *http.Request, op string, fn statusFunc) {
	ctx := r.Context()
	txnID, ok := parseTransactionID(w, r)
	if !ok {
		return
	}
	txn, err := fn(ctx, requestcontext.Actor(ctx), txnID)
	if err != nil {
		h.writeError(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transitionResponse{Transaction: h.present(ctx, txn, false)})
}

func (h *Handler) handleBackfillOffices(w http.ResponseWriter, r *http.Request) {
	h.runBackfill(w, r, "offices", Backfiller.BackfillOffices)
}

func (h *Handler) handleBackfillWorkflows(w http.ResponseWriter, r *http.Request) {
	h.runBackfill(w, r, "workflows", Backfiller.BackfillWorkflows)
}

// runBackfill takes a method expression so an unconfigured backfill is
// reported before anything is dereferenced.
func (h *Handler) runBackfill(w http.ResponseWriter, r *http.Request, kind string, fn func(Backfiller, context.Context) (assignment.BackfillReport, error)) {
	ctx := r.Context()
	if h.backfill == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "backfill is not configured"))
		return
	}
	report, err := fn(h.backfill, ctx)
	if err != nil {
		h.writeError(ctx, w, "backfill_"+kind, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sweeper == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "overdue sweep is not configured"))
		return
	}
	report, err := h.sweeper.Run(ctx)
	if err != nil {
		h.writeError(ctx, w, "sweep", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// present decorates a transaction with its location and, when withETA is
// set, its delay summary. A catalog failure only drops the summary.
func (h *Handler) present(ctx context.Context, txn *models.Transaction, withETA bool) transactionResponse {
	loc := txn.Location()
	out := transactionResponse{
		Transaction:   txn,
		Location:      loc.Kind.String(),
		Stage:         txn.Stage(),
		OutOfWorkflow: loc.OutOfWorkflow(),
	}
	if !withETA {
		return out
	}
	wf, err := h.engine.Workflow(ctx, txn)
	if err != nil {
		h.logger.WarnContext(ctx, "workflow unavailable for eta",
			"request_id", request.GetRequestID(ctx),
			"transaction_id", txn.ID,
			"error", err,
		)
		return out
	}
	summary := h.calculator.Summarize(txn, wf, h.severity, requestcontext.Now(ctx))
	out.ETA = &summary
	return out
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "request failed",
			"request_id", request.GetRequestID(ctx),
			"op", op,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func parseTransactionID(w http.ResponseWriter, r *http.Request) (id.TransactionID, bool) {
	txnID, err := id.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid transaction id"))
		return id.TransactionID{}, false
	}
	return txnID, true
}

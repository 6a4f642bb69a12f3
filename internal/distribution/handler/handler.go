// Package handler exposes the distribution lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"armora/internal/armory"
	"armora/internal/distribution"
	svc "armora/internal/distribution/service"
	"armora/internal/platform/metrics"
	"armora/internal/platform/middleware"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	"armora/pkg/platform/httputil"
	"armora/pkg/requestcontext"
)

// Service defines the distribution operations the handler needs.
type Service interface {
	IssueItems(ctx context.Context, req svc.IssueRequest) (*distribution.Distribution, error)
	ReturnItems(ctx context.Context, distributionID id.DistributionID, returns []svc.ReturnItem) (*distribution.Distribution, error)
	ReturnAll(ctx context.Context, distributionID id.DistributionID) (*distribution.Distribution, error)
	RenewDistribution(ctx context.Context, req svc.RenewRequest) (*distribution.Distribution, error)
	CancelDistribution(ctx context.Context, distributionID id.DistributionID) (*distribution.Distribution, error)
	GetDistribution(ctx context.Context, distributionID id.DistributionID) (*distribution.Distribution, error)
	GetArmory(ctx context.Context, armoryID id.ArmoryID) (*armory.Armory, error)
	ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]*distribution.Distribution, error)
	RenewalSchedule(ctx context.Context) ([]svc.ScheduleEntry, error)
	DueForRenewal(ctx context.Context) ([]svc.ScheduleEntry, error)
}

// Handler handles distribution endpoints.
type Handler struct {
	logger       *slog.Logger
	distribution Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a distribution Handler.
func New(
	distributionSvc Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		distribution: distributionSvc,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the distribution routes with the full middleware chain.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.Recovery(h.logger))
		router.Use(middleware.RequestID)
		router.Use(middleware.RequestTime)
		router.Use(middleware.Logger(h.logger))
		router.Use(middleware.Timeout(30 * time.Second))
		router.Use(middleware.ContentTypeJSON)
		router.Use(middleware.LatencyMiddleware(h.metrics))
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		router.Post("/armories/{armoryID}/distributions", h.handleIssue)
		router.Get("/armories/{armoryID}/distributions", h.handleListByArmory)
		router.Get("/distributions/{distributionID}", h.handleGet)
		router.Post("/distributions/{distributionID}/returns", h.handleReturn)
		router.Post("/distributions/{distributionID}/return-all", h.handleReturnAll)
		router.Post("/distributions/{distributionID}/renewals", h.handleRenew)
		router.Post("/distributions/{distributionID}/cancel", h.handleCancel)
		router.Get("/renewals", h.handleSchedule)
		router.Get("/renewals/due", h.handleDue)
	})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	armoryID, err := id.ParseArmoryID(chi.URLParam(r, "armoryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid armory id"))
		return
	}

	var body issueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.warn(ctx, "invalid issue request body", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	req, err := body.toIssueRequest(armoryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.distribution.IssueItems(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to issue items", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toDistributionResponse(d))
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	distributionID, err := id.ParseDistributionID(chi.URLParam(r, "distributionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid distribution id"))
		return
	}

	var body returnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.warn(ctx, "invalid return request body", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	returns, err := body.toReturnItems()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.distribution.ReturnItems(ctx, distributionID, returns)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to return items", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDistributionResponse(d))
}

func (h *Handler) handleReturnAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	distributionID, err := id.ParseDistributionID(chi.URLParam(r, "distributionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid distribution id"))
		return
	}

	d, err := h.distribution.ReturnAll(ctx, distributionID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to return all items", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDistributionResponse(d))
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	distributionID, err := id.ParseDistributionID(chi.URLParam(r, "distributionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid distribution id"))
		return
	}

	var body renewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.warn(ctx, "invalid renew request body", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	req, err := body.toRenewRequest(distributionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.distribution.RenewDistribution(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to renew distribution", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDistributionResponse(d))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	distributionID, err := id.ParseDistributionID(chi.URLParam(r, "distributionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid distribution id"))
		return
	}

	d, err := h.distribution.CancelDistribution(ctx, distributionID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to cancel distribution", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDistributionResponse(d))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	distributionID, err := id.ParseDistributionID(chi.URLParam(r, "distributionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid distribution id"))
		return
	}

	d, err := h.distribution.GetDistribution(ctx, distributionID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to fetch distribution", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDistributionResponse(d))
}

func (h *Handler) handleListByArmory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	armoryID, err := id.ParseArmoryID(chi.URLParam(r, "armoryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid armory id"))
		return
	}

	list, err := h.distribution.ListByArmory(ctx, armoryID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list distributions", err)
		return
	}

	out := make([]distributionResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toDistributionResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, distributionListResponse{Distributions: out})
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	h.writeSchedule(w, r, h.distribution.RenewalSchedule)
}

func (h *Handler) handleDue(w http.ResponseWriter, r *http.Request) {
	h.writeSchedule(w, r, h.distribution.DueForRenewal)
}

func (h *Handler) writeSchedule(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]svc.ScheduleEntry, error)) {
	ctx := r.Context()

	entries, err := list(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to build renewal schedule", err)
		return
	}

	out := make([]scheduleEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, scheduleEntryResponse{
			Distribution: toDistributionResponse(e.Distribution),
			Computed:     string(e.Computed),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, scheduleResponse{Entries: out})
}

// writeServiceError logs at a severity matching the error class and writes
// the mapped response. Domain codes pass through; anything uncoded is
// reported as internal.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	)
}

// Package handler exposes armory administration over HTTP: creating
// armories, restocking, and reading stock levels.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"armora/internal/armory"
	svc "armora/internal/armory/service"
	"armora/internal/platform/metrics"
	"armora/internal/platform/middleware"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	"armora/pkg/platform/httputil"
	"armora/pkg/requestcontext"
)

// Service defines the armory administration operations the handler needs.
type Service interface {
	CreateArmory(ctx context.Context, name, unit string, initial []svc.StockLine) (*armory.Armory, error)
	Restock(ctx context.Context, armoryID id.ArmoryID, lines []svc.StockLine) (*armory.Armory, error)
	Get(ctx context.Context, armoryID id.ArmoryID) (*armory.Armory, error)
	List(ctx context.Context) ([]*armory.Armory, error)
}

// Handler handles armory administration endpoints.
type Handler struct {
	logger       *slog.Logger
	armories     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates an armory Handler.
func New(
	armorySvc Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		armories:     armorySvc,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the armory routes with the full middleware chain.
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

		router.Post("/armories", h.handleCreate)
		router.Get("/armories", h.handleList)
		router.Get("/armories/{armoryID}", h.handleGet)
		router.Put("/armories/{armoryID}/stock", h.handleRestock)
	})
}

type stockLineDTO struct {
	Type      string `json:"type"`
	Ref       string `json:"ref"`
	Quantity  int    `json:"quantity"`
	Condition string `json:"condition"`
}

func (l stockLineDTO) toStockLine() (svc.StockLine, error) {
	itemType, err := id.ParseItemType(l.Type)
	if err != nil {
		return svc.StockLine{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid item type")
	}
	if l.Ref == "" {
		return svc.StockLine{}, dErrors.New(dErrors.CodeInvalidInput, "item ref is required")
	}
	condition, err := id.ParseCondition(l.Condition)
	if err != nil {
		return svc.StockLine{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid condition")
	}
	if l.Quantity <= 0 {
		return svc.StockLine{}, dErrors.New(dErrors.CodeInvalidInput, "quantity must be positive")
	}
	return svc.StockLine{
		Key:       armory.LineKey{Type: itemType, Ref: l.Ref},
		Quantity:  l.Quantity,
		Condition: condition,
	}, nil
}

type createArmoryRequest struct {
	Name    string         `json:"name"`
	Unit    string         `json:"unit"`
	Initial []stockLineDTO `json:"initial_stock,omitempty"`
}

type restockRequest struct {
	Lines []stockLineDTO `json:"lines"`
}

type stockLineResponse struct {
	Type      string `json:"type"`
	Ref       string `json:"ref"`
	Quantity  int    `json:"quantity"`
	Condition string `json:"condition"`
}

type armoryResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Unit      string              `json:"unit,omitempty"`
	Lines     []stockLineResponse `json:"lines"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type armoryListResponse struct {
	Armories []armoryResponse `json:"armories"`
}

func toArmoryResponse(a *armory.Armory) armoryResponse {
	lines := make([]stockLineResponse, 0, len(a.Lines))
	for _, line := range a.Lines {
		lines = append(lines, stockLineResponse{
			Type:      line.Key.Type.String(),
			Ref:       line.Key.Ref,
			Quantity:  line.Quantity,
			Condition: line.Condition.String(),
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Type != lines[j].Type {
			return lines[i].Type < lines[j].Type
		}
		return lines[i].Ref < lines[j].Ref
	})
	return armoryResponse{
		ID:        a.ID.String(),
		Name:      a.Name,
		Unit:      a.Unit,
		Lines:     lines,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body createArmoryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	initial := make([]svc.StockLine, 0, len(body.Initial))
	for _, l := range body.Initial {
		line, err := l.toStockLine()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		initial = append(initial, line)
	}

	a, err := h.armories.CreateArmory(ctx, body.Name, body.Unit, initial)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create armory", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toArmoryResponse(a))
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	armoryID, err := id.ParseArmoryID(chi.URLParam(r, "armoryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid armory id"))
		return
	}

	var body restockRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	lines := make([]svc.StockLine, 0, len(body.Lines))
	for _, l := range body.Lines {
		line, err := l.toStockLine()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		lines = append(lines, line)
	}

	a, err := h.armories.Restock(ctx, armoryID, lines)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to restock armory", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toArmoryResponse(a))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	armoryID, err := id.ParseArmoryID(chi.URLParam(r, "armoryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid armory id"))
		return
	}

	a, err := h.armories.Get(ctx, armoryID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to fetch armory", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toArmoryResponse(a))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	armories, err := h.armories.List(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list armories", err)
		return
	}

	out := make([]armoryResponse, 0, len(armories))
	for _, a := range armories {
		out = append(out, toArmoryResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, armoryListResponse{Armories: out})
}

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

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/order/application"
	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/correlation"
)

type Handler struct {
	log         *slog.Logger
	coordinator *application.Coordinator
	tracer      trace.Tracer
}

func NewHandler(log *slog.Logger, coordinator *application.Coordinator) *Handler {
	return &Handler{
		log:         log,
		coordinator: coordinator,
		tracer:      otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/confirm", h.confirmOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/fulfill", h.fulfillOrder)
	return r
}

type createOrderReq struct {
	ID            string `json:"id"`
	CustomerID    string `json:"customerId"`
	CorrelationID string `json:"correlationId"`
	CreatedBy     string `json:"createdBy"`
	Items         []struct {
		ProductID      string `json:"productId"`
		ProductName    string `json:"productName"`
		Quantity       int    `json:"quantity"`
		UnitPriceCents *int64 `json:"unitPriceCents"`
	} `json:"items"`
}

type orderResp struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	TotalCents    int64  `json:"totalCents"`
	CorrelationID string `json:"correlationId"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	corrID := req.CorrelationID
	if corrID == "" {
		corrID = correlation.FromRequest(r)
	}
	cmd := application.CreateOrderCommand{
		OrderID:       req.ID,
		CustomerID:    req.CustomerID,
		CorrelationID: corrID,
		CreatedBy:     req.CreatedBy,
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, application.CreateOrderItem{
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}

	o, err := h.coordinator.CreateOrder(ctx, cmd)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}
	w.Header().Set(correlation.Header, o.CorrelationID)
	writeJSON(w, http.StatusCreated, orderResp{
		OrderID:       o.ID,
		Status:        string(o.Status),
		TotalCents:    o.TotalCents,
		CorrelationID: o.CorrelationID,
	})
}

func (h *Handler) writeCreateError(w http.ResponseWriter, err error) {
	var rejected *application.ReservationRejectedError
	switch {
	case errors.As(err, &rejected):
		results := make([]map[string]any, 0, len(rejected.Results))
		for _, res := range rejected.Results {
			results = append(results, map[string]any{
				"productId":         res.ProductID,
				"requestedQuantity": res.RequestedQuantity,
				"availableStock":    res.AvailableStock,
				"success":           res.Success,
				"errorMessage":      res.ErrorMessage,
			})
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":              "reservation rejected",
			"orderId":            rejected.OrderID,
			"reservationResults": results,
		})
	case errors.Is(err, application.ErrReservationUnavailable):
		http.Error(w, "reservation service unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrNoItems),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrDuplicateProduct),
		errors.Is(err, application.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("create order failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, found, err := h.coordinator.GetOrder(r.Context(), id)
	if err != nil {
		h.log.Error("get order failed", "order_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}

	items := make([]map[string]any, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, map[string]any{
			"productId":      item.ProductID,
			"productName":    item.ProductName,
			"quantity":       item.Quantity,
			"unitPriceCents": item.UnitPriceCents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orderId":       o.ID,
		"customerId":    o.CustomerID,
		"status":        string(o.Status),
		"totalCents":    o.TotalCents,
		"correlationId": o.CorrelationID,
		"items":         items,
		"createdAt":     o.CreatedAt,
		"updatedAt":     o.UpdatedAt,
	})
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmOrder")
	defer span.End()
	o, err := h.coordinator.ConfirmOrder(ctx, chi.URLParam(r, "id"))
	h.writeTransition(w, o, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	var body struct {
		Reason string `json:"reason"`
	}
	// An empty body is fine; reason is optional.
	_ = json.NewDecoder(r.Body).Decode(&body)

	o, err := h.coordinator.CancelOrder(ctx, chi.URLParam(r, "id"), body.Reason)
	h.writeTransition(w, o, err)
}

func (h *Handler) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "FulfillOrder")
	defer span.End()
	o, err := h.coordinator.MarkOrderAsFulfilled(ctx, chi.URLParam(r, "id"))
	h.writeTransition(w, o, err)
}

func (h *Handler) writeTransition(w http.ResponseWriter, o domain.Order, err error) {
	var invalid *domain.ErrInvalidTransition
	switch {
	case errors.Is(err, application.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusConflict)
	case err != nil:
		h.log.Error("order transition failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, orderResp{
			OrderID:       o.ID,
			Status:        string(o.Status),
			TotalCents:    o.TotalCents,
			CorrelationID: o.CorrelationID,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

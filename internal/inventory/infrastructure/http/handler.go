package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/inventory/application"
	"github.com/orderflow/orderflow/internal/inventory/domain"
	"github.com/orderflow/orderflow/pkg/correlation"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("inventory-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/stockreservations", h.createReservation)
	r.Get("/stockreservations/order/{orderID}", h.reservationsByOrder)
	r.Get("/stockreservations/{id}", h.reservation)
	r.Get("/products/{id}", h.product)
	return r
}

type createReservationReq struct {
	OrderID       string `json:"orderId"`
	CorrelationID string `json:"correlationId"`
	Items         []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

type reservationResultResp struct {
	ProductID         string `json:"productId"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableStock    int    `json:"availableStock"`
	Success           bool   `json:"success"`
	ReservationID     string `json:"reservationId,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}

type createReservationResp struct {
	Success            bool                    `json:"success"`
	ReservationResults []reservationResultResp `json:"reservationResults"`
}

func (h *Handler) createReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateReservation")
	defer span.End()

	var req createReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		http.Error(w, "orderId is required", http.StatusBadRequest)
		return
	}
	corrID := req.CorrelationID
	if corrID == "" {
		corrID = correlation.FromRequest(r)
	}
	ctx = correlation.WithID(ctx, corrID)

	items := make([]application.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, application.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	result, err := h.service.CreateReservation(ctx, req.OrderID, corrID, items)
	switch {
	case errors.Is(err, domain.ErrReservationConflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "reservation already exists for order",
			"orderId": req.OrderID,
		})
		return
	case errors.Is(err, application.ErrNoItems),
		errors.Is(err, application.ErrDuplicateProduct),
		errors.Is(err, domain.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error("create reservation failed", "order_id", req.OrderID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := createReservationResp{Success: result.Success}
	for _, res := range result.Results {
		resp.ReservationResults = append(resp.ReservationResults, reservationResultResp{
			ProductID:         res.ProductID,
			RequestedQuantity: res.RequestedQuantity,
			AvailableStock:    res.AvailableStock,
			Success:           res.Success,
			ReservationID:     res.ReservationID,
			ErrorMessage:      res.ErrorMessage,
		})
	}
	if !result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type reservationResp struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"orderId"`
	ProductID     string     `json:"productId"`
	ProductName   string     `json:"productName"`
	Quantity      int        `json:"quantity"`
	Status        string     `json:"status"`
	ReservedAt    time.Time  `json:"reservedAt"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	CorrelationID string     `json:"correlationId"`
}

func (h *Handler) reservationsByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	reservations, err := h.service.GetReservationsByOrder(r.Context(), orderID)
	if err != nil {
		h.log.Error("list reservations failed", "order_id", orderID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(reservations) == 0 {
		http.Error(w, "no reservations for order", http.StatusNotFound)
		return
	}
	out := make([]reservationResp, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, toReservationResp(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) reservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, found, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.log.Error("get reservation failed", "id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "reservation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResp(res))
}

func (h *Handler) product(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, found, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.log.Error("get product failed", "id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             p.ID,
		"name":           p.Name,
		"unitPriceCents": p.UnitPriceCents,
		"stock":          p.Stock,
	})
}

func toReservationResp(res domain.StockReservation) reservationResp {
	return reservationResp{
		ID:            res.ID,
		OrderID:       res.OrderID,
		ProductID:     res.ProductID,
		ProductName:   res.ProductName,
		Quantity:      res.Quantity,
		Status:        string(res.Status),
		ReservedAt:    res.ReservedAt,
		ProcessedAt:   res.ProcessedAt,
		CorrelationID: res.CorrelationID,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

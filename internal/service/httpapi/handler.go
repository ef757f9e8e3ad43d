// Package httpapi реализует REST-интерфейс заказов поверх chi.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/health"
	"github.com/vladislavdragonenkov/orderstore/internal/mapper"
	"github.com/vladislavdragonenkov/orderstore/internal/version"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 20

// Orders — операции сервиса заказов, которые использует REST.
type Orders interface {
	Create(ctx context.Context, payload map[string]any) (*mapper.ExternalOrder, error)
	Get(ctx context.Context, orderID string) (*mapper.ExternalOrder, error)
	List(ctx context.Context) ([]*mapper.ExternalOrder, error)
	Replace(ctx context.Context, orderID string, payload map[string]any) (*mapper.ExternalOrder, error)
	Delete(ctx context.Context, orderID string) (bool, error)
}

// Handler обслуживает маршруты /order.
type Handler struct {
	orders Orders
	health *health.Handler
	logger *log.Entry
}

// NewHandler создаёт обработчик. health может быть nil: тогда GET /health всегда отвечает 200.
func NewHandler(orders Orders, healthHandler *health.Handler, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{orders: orders, health: healthHandler, logger: logger}
}

// Router собирает chi-роутер со всеми маршрутами и middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", h.index)
	r.Get("/health", h.healthz)
	r.Route("/order", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/list", h.listOrders)
		r.Get("/{orderId}", h.getOrder)
		r.Put("/{orderId}", h.replaceOrder)
		r.Delete("/{orderId}", h.deleteOrder)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, domain.KindNotFound,
			fmt.Sprintf("route not found: %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, domain.KindValidation,
			fmt.Sprintf("method not allowed: %s %s", r.Method, r.URL.Path))
	})
	return r
}

func (h *Handler) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "order store API",
		"service": version.ServiceName,
		"version": version.GetVersion(),
		"endpoints": map[string]string{
			"create_order":  "POST /order",
			"get_order":     "GET /order/{orderId}",
			"list_orders":   "GET /order/list",
			"replace_order": "PUT /order/{orderId}",
			"delete_order":  "DELETE /order/{orderId}",
		},
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "service is up",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	report := h.health.Evaluate(r.Context())
	status := http.StatusOK
	message := "service is up"
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
		message = "service unavailable"
	}
	writeJSON(w, status, map[string]any{
		"success":   status == http.StatusOK,
		"message":   message,
		"status":    report.Status,
		"checks":    report.Checks,
		"timestamp": report.Timestamp,
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Create(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "order created", order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "order found", order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d order(s) found", len(orders)), orders)
}

func (h *Handler) replaceOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	payload, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Replace(r.Context(), orderID, payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "order replaced", order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	deleted, err := h.orders.Delete(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, domain.KindNotFound, fmt.Sprintf("order %s not found", orderID))
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("order %s deleted", orderID), nil)
}

// decodeBody читает JSON-объект. Числа сохраняются как json.Number.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		msg := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.KindValidation, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, domain.KindValidation, msg)
		return nil, false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, domain.KindValidation, "malformed JSON body")
		return nil, false
	}
	return payload, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	kind := domain.KindOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
		message = "internal server error"
	}
	if status == http.StatusGatewayTimeout {
		message = "request timed out"
	}
	writeError(w, status, kind, message)
}

package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"food-market/internal/apperrors"
	"food-market/internal/logger"
	"food-market/internal/models"
)

// HealthChecker reports whether the service's dependencies are reachable.
type HealthChecker func(ctx context.Context) bool

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
	healthy HealthChecker
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger, healthy HealthChecker) *Handler {
	return &Handler{
		service: service,
		logger:  log,
		healthy: healthy,
	}
}

// RegisterRoutes mounts the order routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.withLogging(h.CreateOrder))
	mux.HandleFunc("GET /orders/{id}", h.withLogging(h.GetOrderDetails))
	mux.HandleFunc("POST /orders/{id}/accept", h.withLogging(h.AcceptOrder))
	mux.HandleFunc("POST /orders/{id}/reject", h.withLogging(h.RejectOrder))
	mux.HandleFunc("PATCH /orders/{id}/status", h.withLogging(h.UpdateOrderStatus))
	mux.HandleFunc("GET /customers/orders", h.withLogging(h.GetCustomerOrders))
	mux.HandleFunc("GET /restaurants/{id}/orders", h.withLogging(h.GetRestaurantOrders))
	mux.HandleFunc("GET /health", h.HealthCheck)
}

// caller is the identity asserted by the upstream auth gateway.
type caller struct {
	userID string
	role   string
}

// identify reads the gateway-asserted identity headers.
func (h *Handler) identify(w http.ResponseWriter, r *http.Request, requestID string) (caller, bool) {
	c := caller{
		userID: r.Header.Get("X-User-ID"),
		role:   r.Header.Get("X-User-Role"),
	}
	if c.userID == "" || c.role == "" {
		h.writeErrorResponse(w, http.StatusUnauthorized, "Missing identity headers", requestID, nil)
		return caller{}, false
	}
	return c, true
}

// CreateOrder handles POST /orders requests
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	c, ok := h.identify(w, r, requestID)
	if !ok {
		return
	}
	if c.role != RoleCustomer {
		h.writeErrorResponse(w, http.StatusForbidden, "Only customers can place orders", requestID, nil)
		return
	}

	var req models.CreateOrderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	response, err := h.service.CreateOrder(ctx, c.userID, &req, requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID, map[string]interface{}{
			"restaurant_id": req.RestaurantID,
		})
		return
	}

	h.logger.Debug("order_created", "Order created successfully", requestID, map[string]interface{}{
		"order_id":           response.ID,
		"daily_order_number": response.DailyOrderNumber,
		"final_price":        response.FinalPrice,
	})

	h.writeJSON(w, http.StatusCreated, response, requestID)
}

// GetOrderDetails handles GET /orders/{id}
func (h *Handler) GetOrderDetails(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	c, ok := h.identify(w, r, requestID)
	if !ok {
		return
	}

	details, err := h.service.GetOrderDetails(r.Context(), r.PathValue("id"), c.userID, c.role)
	if err != nil {
		h.writeDomainError(w, err, requestID, map[string]interface{}{"order_id": r.PathValue("id")})
		return
	}
	h.writeJSON(w, http.StatusOK, details, requestID)
}

// AcceptOrder handles POST /orders/{id}/accept
func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	c, ok := h.identify(w, r, requestID)
	if !ok {
		return
	}

	order, err := h.service.AcceptOrder(r.Context(), r.PathValue("id"), c.userID, requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID, map[string]interface{}{"order_id": r.PathValue("id")})
		return
	}
	h.writeJSON(w, http.StatusOK, order, requestID)
}

// RejectOrder handles POST /orders/{id}/reject
func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	c, ok := h.identify(w, r, requestID)
	if !ok {
		return
	}

	var req models.RejectOrderRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID, nil)
			return
		}
	}

	order, err := h.service.RejectOrder(r.Context(), r.PathValue("id"), c.userID, requestID, req.Reason)
	if err != nil {
		h.writeDomainError(w, err, requestID, map[string]interface{}{"order_id": r.PathValue("id")})
		return
	}
	h.writeJSON(w, http.StatusOK, order, requestID)
}

// UpdateOrderStatus handles PATCH /orders/{id}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	c, ok := h.identify(w, r, requestID)
	if !ok {
		return
	}

	var req models.UpdateOrderStatusRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID, nil)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), r.PathValue("id"), c.userID, req.NewStatus, req.Notes, requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID, map[string]interface{}{
			"order_id":   r.PathValue("id"),
			"new_status": string(req.NewStatus),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, order, requestID)
}

// GetCustomerOrders handles GET /customers/orders
func (h *Handler) GetCustomerOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	c, ok := h.identify(w, r, requestID)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		h.writeDomainError(w, err, requestID, nil)
		return
	}

	orders, err := h.service.GetCustomerOrders(r.Context(), c.userID, filters)
	if err != nil {
		h.writeDomainError(w, err, requestID, nil)
		return
	}
	if orders == nil {
		orders = []models.OrderWithRestaurant{}
	}
	h.writeJSON(w, http.StatusOK, orders, requestID)
}

// GetRestaurantOrders handles GET /restaurants/{id}/orders
func (h *Handler) GetRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	c, ok := h.identify(w, r, requestID)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		h.writeDomainError(w, err, requestID, nil)
		return
	}

	orders, err := h.service.GetRestaurantOrders(r.Context(), r.PathValue("id"), c.userID, filters)
	if err != nil {
		h.writeDomainError(w, err, requestID, map[string]interface{}{"restaurant_id": r.PathValue("id")})
		return
	}
	if orders == nil {
		orders = []models.OrderWithCustomer{}
	}
	h.writeJSON(w, http.StatusOK, orders, requestID)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.healthy(ctx)

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		response["status"] = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// parseFilters reads the list query parameters.
func parseFilters(r *http.Request) (models.OrderFilters, error) {
	var filters models.OrderFilters
	verr := &apperrors.ValidationError{}
	query := r.URL.Query()

	if raw := query.Get("status"); raw != "" {
		status := models.OrderStatus(raw)
		if !status.Valid() {
			verr.Add("status", fmt.Sprintf("unknown status %q", raw))
		} else {
			filters.Status = &status
		}
	}
	for _, bound := range []struct {
		name   string
		target **time.Time
	}{
		{"from", &filters.From},
		{"to", &filters.To},
	} {
		if raw := query.Get(bound.name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				verr.Add(bound.name, "must be an RFC3339 timestamp")
				continue
			}
			*bound.target = &t
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("limit", "must be an integer")
		} else {
			filters.Limit = limit
		}
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("offset", "must be an integer")
		} else {
			filters.Offset = offset
		}
	}

	if verr.HasViolations() {
		return models.OrderFilters{}, verr
	}
	return filters, nil
}

// writeDomainError maps the core's error taxonomy onto HTTP status codes:
// ValidationError 422, NotFoundError 404, ConflictError 409,
// AuthorizationError 403, anything else 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, requestID string, fields map[string]interface{}) {
	var (
		verr     *apperrors.ValidationError
		notFound *apperrors.NotFoundError
		conflict *apperrors.ConflictError
		forbid   *apperrors.AuthorizationError
	)

	switch {
	case errors.As(err, &verr):
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, "Validation failed", requestID, verr.Violations)
	case errors.As(err, &notFound):
		h.writeErrorResponse(w, http.StatusNotFound, notFound.Error(), requestID, nil)
	case errors.As(err, &conflict):
		h.writeErrorResponse(w, http.StatusConflict, conflict.Error(), requestID, nil)
	case errors.As(err, &forbid):
		h.writeErrorResponse(w, http.StatusForbidden, forbid.Error(), requestID, nil)
	default:
		h.logger.Error("request_failed", "Unexpected error", requestID, err, fields)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID, nil)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}
	if details != nil {
		errorResponse["details"] = details
	}

	json.NewEncoder(w).Encode(errorResponse)
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

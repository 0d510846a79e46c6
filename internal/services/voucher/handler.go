package voucher

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"food-market/internal/logger"
	"food-market/internal/models"
)

// Handler serves the voucher validation endpoint.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a voucher handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// RegisterRoutes mounts the voucher routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /vouchers/validate", h.ValidateVoucher)
}

// ValidateVoucher handles POST /vouchers/validate. An invalid voucher is a
// normal 200 response with valid=false; only a malformed request is an error.
func (h *Handler) ValidateVoucher(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	var req models.ValidateVoucherRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}
	if req.Code == "" {
		h.writeError(w, http.StatusUnprocessableEntity, "code is required", requestID)
		return
	}

	result, err := h.service.Validate(r.Context(), req.Code, req.RestaurantID, time.Now())
	if err != nil {
		h.logger.Error("voucher_validation_failed", "Failed to validate voucher", requestID, err, map[string]interface{}{
			"code": req.Code,
		})
		h.writeError(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	resp := models.ValidateVoucherResponse{Valid: result.Valid, Message: result.Reason}
	if result.Valid && req.OrderAmount != nil {
		discount := CalculateDiscount(result.Voucher, *req.OrderAmount)
		finalPrice, _ := decimal.NewFromFloat(*req.OrderAmount).
			Sub(decimal.NewFromFloat(discount)).Round(2).Float64()
		if finalPrice <= 0 {
			// A voucher may not zero-out or negate an order.
			resp = models.ValidateVoucherResponse{Valid: false, Message: ReasonZeroTotal}
		} else {
			resp.DiscountAmount = &discount
			resp.FinalPrice = &finalPrice
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

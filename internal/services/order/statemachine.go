package order

import (
	"food-market/internal/apperrors"
	"food-market/internal/models"
)

// allowedTransitions is the full order lifecycle. Statuses absent from the
// map are terminal.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:    {models.StatusAccepted, models.StatusRejected, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:  {models.StatusReady, models.StatusCancelled},
	models.StatusReady:      {models.StatusDelivering, models.StatusCancelled},
	models.StatusDelivering: {models.StatusDelivered, models.StatusCancelled},
}

// IsTerminal reports whether status has no outgoing transitions.
func IsTerminal(status models.OrderStatus) bool {
	switch status {
	case models.StatusRejected, models.StatusDelivered, models.StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a legal one-step transition.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates a requested transition, returning a
// ConflictError describing the violation when it is illegal.
func CheckTransition(from, to models.OrderStatus) error {
	if IsTerminal(from) {
		return apperrors.Conflict("order is already in final status %s", from)
	}
	if !CanTransition(from, to) {
		return apperrors.Conflict("invalid transition from %s to %s", from, to)
	}
	return nil
}

// timestampColumns maps each status to the orders column recording when the
// status was first reached. pending has no column; created_at covers it.
var timestampColumns = map[models.OrderStatus]string{
	models.StatusAccepted:   "accepted_at",
	models.StatusRejected:   "rejected_at",
	models.StatusPreparing:  "preparing_started_at",
	models.StatusReady:      "ready_at",
	models.StatusDelivering: "delivering_started_at",
	models.StatusDelivered:  "delivered_at",
}

// TimestampColumn returns the per-status timestamp column, "" when none.
func TimestampColumn(status models.OrderStatus) string {
	return timestampColumns[status]
}

package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-boxoffice/internal/models"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func WriteJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success:   status < 400,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteError maps the service error taxonomy to an HTTP status. Raw
// gateway/storage error text never reaches the client; callers log the
// underlying error with the order/ticket identifier.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var conflict *models.SeatConflictError
	var invalid *models.ValidationError

	switch {
	case errors.As(err, &conflict):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(struct {
			Success          bool      `json:"success"`
			Message          string    `json:"message"`
			UnavailableSeats []int     `json:"unavailable_seats"`
			Timestamp        time.Time `json:"timestamp"`
		}{false, "seats are no longer available", conflict.Seats, time.Now().UTC()})
		return
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
		message = invalid.Error()
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		message = "not found"
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
		message = "forbidden"
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrAlreadyFinalized),
		errors.Is(err, models.ErrNotRefundable),
		errors.Is(err, models.ErrEventOccurred):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, models.ErrAlreadyUsed):
		status = http.StatusConflict
		message = "ticket already used"
	case errors.Is(err, models.ErrPaymentFailed):
		status = http.StatusPaymentRequired
		message = "payment was declined"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success:   false,
		Message:   message,
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}

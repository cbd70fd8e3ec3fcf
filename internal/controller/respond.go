package controller

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/service"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("⚠️ Failed to encode response:", err)
	}
}

// statusFor maps a typed application error to its HTTP status.
func statusFor(err error) int {
	var (
		validation *appErrors.ValidationError
		malformed  *appErrors.MalformedKeyError
		transition *appErrors.InvalidTransitionError
		ack        *appErrors.AcknowledgmentRequiredError
		blocked    *appErrors.BlockedError
		notFound   *appErrors.NotFoundError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &malformed), errors.As(err, &transition),
		errors.As(err, &ack), errors.As(err, &blocked):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Println("❌ Request failed:", err)
		writeJSON(w, status, map[string]string{"error": "internal error", "code": appErrors.CodeInternal})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": appErrors.CodeOf(err)})
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return appErrors.NewValidationError("body", "invalid JSON body")
	}
	return nil
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	if err := decodeBody(r, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return service.FromValidator(err)
	}
	return nil
}

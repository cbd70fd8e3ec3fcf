// Package idempotency derives the key that makes each (prospect, sequence, step)
// send happen at most once.
package idempotency

import (
	"fmt"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

const (
	separator       = ":"
	cancelledMarker = "::CANCELLED::"
)

// Encode builds "{prospectId}:{sequenceId}:{stepNumber}".
func Encode(prospectID, sequenceID string, stepNumber int) (string, error) {
	if err := checkPart("prospectId", prospectID); err != nil {
		return "", err
	}
	if err := checkPart("sequenceId", sequenceID); err != nil {
		return "", err
	}
	if stepNumber < 1 {
		return "", appErrors.NewValidationError("stepNumber", fmt.Sprintf("must be >= 1, got %d", stepNumber))
	}
	return prospectID + separator + sequenceID + separator + strconv.Itoa(stepNumber), nil
}

func checkPart(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return appErrors.NewValidationError(field, "must not be empty")
	}
	if strings.Contains(v, separator) {
		return appErrors.NewValidationError(field, "must not contain ':'")
	}
	return nil
}

// Decode splits a key produced by Encode.
func Decode(key string) (prospectID, sequenceID string, stepNumber int, err error) {
	parts := strings.Split(key, separator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", 0, appErrors.NewMalformedKey(key)
	}
	n, convErr := strconv.Atoi(parts[2])
	if convErr != nil || n < 1 || strconv.Itoa(n) != parts[2] {
		return "", "", 0, appErrors.NewMalformedKey(key)
	}
	return parts[0], parts[1], n, nil
}

// IsValid reports whether key decodes.
func IsValid(key string) bool {
	_, _, _, err := Decode(key)
	return err == nil
}

// Cancelled rewrites the key of a cancelled row so the logical key can be reused.
func Cancelled(key, rowID string) string {
	if IsCancelled(key) {
		return key
	}
	return key + cancelledMarker + rowID
}

// IsCancelled reports whether key was rewritten by Cancelled.
func IsCancelled(key string) bool {
	return strings.Contains(key, cancelledMarker)
}

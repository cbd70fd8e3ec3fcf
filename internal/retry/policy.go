// Package retry classifies delivery failures and computes backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

// MaxRetryAttempts is the number of send attempts a row gets before it is FAILED.
const MaxRetryAttempts = 3

// Backoff is indexed by the number of failed attempts so far.
var Backoff = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

// Transport and provider codes.
var (
	RetryableCodes = []string{
		"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "RATE_LIMIT_EXCEEDED",
		"TEMPORARY_FAILURE", "SERVICE_UNAVAILABLE", "NETWORK_ERROR", "CONNECTION_ERROR",
	}
	NonRetryableCodes = []string{
		"INVALID_RECIPIENT", "AUTH_REVOKED", "TOKEN_EXPIRED", "MAIL_HARD_BOUNCE",
		"PERMISSION_DENIED", "INVALID_EMAIL", "RECIPIENT_NOT_FOUND",
	}
	GmailRetryableReasons = []string{
		"rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "backendError", "internalError",
	}
	GmailNonRetryableReasons = []string{
		"invalidGrant", "authError", "invalid", "notFound", "failedPrecondition", "invalidArgument",
	}
)

var (
	codePattern = regexp.MustCompile(`^([A-Z_]+):|Error:\s*([A-Z_]+)`)

	transientPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)timeout`),
		regexp.MustCompile(`(?i)timed.?out`),
		regexp.MustCompile(`(?i)connection`),
		regexp.MustCompile(`(?i)network`),
		regexp.MustCompile(`(?i)econnreset`),
		regexp.MustCompile(`(?i)etimedout`),
		regexp.MustCompile(`(?i)rate.?limit`),
		regexp.MustCompile(`(?i)too.?many.?requests`),
		regexp.MustCompile(`5\d{2}`),
		regexp.MustCompile(`(?i)temporarily`),
		regexp.MustCompile(`(?i)unavailable`),
	}
)

// NextRetry returns now plus the backoff for attemptIndex (0-based).
// ok is false once attemptIndex reaches MaxRetryAttempts.
func NextRetry(now time.Time, attemptIndex int) (next time.Time, ok bool) {
	if attemptIndex < 0 {
		attemptIndex = 0
	}
	if attemptIndex >= MaxRetryAttempts {
		return time.Time{}, false
	}
	return now.Add(Backoff[attemptIndex]), true
}

// ExtractCode returns the error code carried by err, or "".
func ExtractCode(err error) string {
	if err == nil {
		return ""
	}
	var d *appErrors.DeliveryError
	if errors.As(err, &d) {
		return d.ErrCode
	}
	m := codePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// IsRetryable reports whether a send failing with err may be attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if appErrors.IsAuthError(err) {
		return false
	}

	msg := err.Error()
	code := ExtractCode(err)
	if matchesAny(msg, code, NonRetryableCodes) || matchesAny(msg, code, GmailNonRetryableReasons) {
		return false
	}
	if matchesAny(msg, code, RetryableCodes) || matchesAny(msg, code, GmailRetryableReasons) {
		return true
	}

	var d *appErrors.DeliveryError
	if errors.As(err, &d) {
		return d.Retryable
	}

	for _, p := range transientPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

func matchesAny(msg, code string, codes []string) bool {
	for _, c := range codes {
		if code == c || strings.Contains(msg, c) {
			return true
		}
	}
	return false
}

// Decision is the outcome of a failed send.
type Decision struct {
	Retry       bool
	NextRetryAt *time.Time
	Attempts    int
	Code        string
	Message     string
}

// Decide classifies err for a row that had priorAttempts failures before.
func Decide(err error, priorAttempts int, now time.Time) Decision {
	d := Decision{
		Attempts: priorAttempts + 1,
		Code:     ExtractCode(err),
		Message:  err.Error(),
	}
	if !IsRetryable(err) {
		d.Message = "Non-retryable error: " + d.Message
		return d
	}
	next, ok := NextRetry(now, priorAttempts)
	if !ok || d.Attempts >= MaxRetryAttempts {
		d.Message = fmt.Sprintf("Max retries exceeded (%d/%d): %s", d.Attempts, MaxRetryAttempts, d.Message)
		return d
	}
	d.Retry = true
	d.NextRetryAt = &next
	return d
}

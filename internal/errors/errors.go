// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Stable machine-readable codes returned to API callers.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeMalformedKey           = "MALFORMED_KEY"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeDuplicateKey           = "DUPLICATE_IDEMPOTENCY_KEY"
	CodeAuth                   = "AUTH_ERROR"
	CodeAcknowledgmentRequired = "ACKNOWLEDGMENT_REQUIRED"
	CodeNotFound               = "NOT_FOUND"
	CodeInternal               = "INTERNAL_ERROR"
)

// Coded is implemented by every error of this package.
type Coded interface {
	error
	Code() string
}

// CodeOf returns the code of the first Coded error in err's chain.
func CodeOf(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Code() string { return CodeValidation }

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// MalformedKeyError is returned when an idempotency key cannot be decoded.
type MalformedKeyError struct {
	Key string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed idempotency key %q", e.Key)
}

func (e *MalformedKeyError) Code() string { return CodeMalformedKey }

func NewMalformedKey(key string) error {
	return &MalformedKeyError{Key: key}
}

// InvalidTransitionError is a state machine rule violation. Nothing is mutated.
type InvalidTransitionError struct {
	Entity string
	Action string
	From   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s that is %s", e.Action, e.Entity, StatusLabel(e.From))
}

func (e *InvalidTransitionError) Code() string { return CodeInvalidTransition }

func NewInvalidTransition(entity, action, from string) error {
	return &InvalidTransitionError{Entity: entity, Action: action, From: from}
}

var statusLabels = map[string]string{
	"DRAFT":     "draft",
	"RUNNING":   "running",
	"ENROLLED":  "active",
	"PAUSED":    "paused",
	"COMPLETED": "completed",
	"STOPPED":   "stopped",
	"REPLIED":   "replied",
}

// StatusLabel is the human-readable label of a campaign or enrollment status.
func StatusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

// DuplicateIdempotencyKeyError means a pending or sent row already owns the key.
// Callers treat it as success.
type DuplicateIdempotencyKeyError struct {
	Key string
}

func (e *DuplicateIdempotencyKeyError) Error() string {
	return fmt.Sprintf("scheduled email with key %q already exists", e.Key)
}

func (e *DuplicateIdempotencyKeyError) Code() string { return CodeDuplicateKey }

func NewDuplicateIdempotencyKey(key string) error {
	return &DuplicateIdempotencyKeyError{Key: key}
}

// IsDuplicateKey reports whether err is a DuplicateIdempotencyKeyError.
func IsDuplicateKey(err error) bool {
	var d *DuplicateIdempotencyKeyError
	return errors.As(err, &d)
}

// DeliveryError is a send failure with a provider or transport error code.
type DeliveryError struct {
	ErrCode   string
	Message   string
	Retryable bool
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

func (e *DeliveryError) Code() string { return e.ErrCode }

func NewTransientDeliveryError(code, message string) error {
	return &DeliveryError{ErrCode: code, Message: message, Retryable: true}
}

func NewFatalDeliveryError(code, message string) error {
	return &DeliveryError{ErrCode: code, Message: message, Retryable: false}
}

// AuthError means the workspace mailbox credentials are invalid or revoked.
type AuthError struct {
	WorkspaceID string
	Message     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mailbox auth failed for workspace %s: %s", e.WorkspaceID, e.Message)
}

func (e *AuthError) Code() string { return CodeAuth }

func NewAuthError(workspaceID, message string) error {
	return &AuthError{WorkspaceID: workspaceID, Message: message}
}

// IsAuthError reports whether err is an AuthError.
func IsAuthError(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

// AcknowledgmentRequiredError blocks resuming an auto-paused campaign without acknowledgeRisk.
type AcknowledgmentRequiredError struct {
	CampaignID string
	Reason     string
}

func (e *AcknowledgmentRequiredError) Error() string {
	return fmt.Sprintf("campaign %s was paused automatically (%s); resuming requires acknowledging the risk", e.CampaignID, e.Reason)
}

func (e *AcknowledgmentRequiredError) Code() string { return CodeAcknowledgmentRequired }

func NewAcknowledgmentRequired(campaignID, reason string) error {
	return &AcknowledgmentRequiredError{CampaignID: campaignID, Reason: reason}
}

// NotFoundError is returned by repositories for unknown ids.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }

func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func NewCampaignNotFound(id string) error {
	return NewNotFound("campaign", id)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// BlockedError is a guardrail refusal, e.g. launching without a connected mailbox.
// Code carries the guardrail code such as GMAIL_NOT_CONNECTED.
type BlockedError struct {
	BlockCode string
	Reason    string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s", e.BlockCode, e.Reason)
}

func (e *BlockedError) Code() string { return e.BlockCode }

func NewBlocked(code, reason string) error {
	return &BlockedError{BlockCode: code, Reason: reason}
}

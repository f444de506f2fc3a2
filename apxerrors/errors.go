// Package apxerrors implements the single tagged-variant error value used
// across the fleet core: one Error type carrying a taxonomy category,
// severity, sanitized context, and recovery suggestions, with projectors onto
// HTTP, gRPC, and JSON-RPC status spaces for whichever frontend is hosting the
// core.
package apxerrors

import (
	"fmt"
	"net/http"
)

// Category is the taxonomy kind from spec §7.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategorySession        Category = "session"
	CategoryRateLimit      Category = "rate_limit"
	CategoryResource       Category = "resource"
	CategoryNetwork        Category = "network"
	CategoryBrowser        Category = "browser"
	CategoryConfiguration  Category = "configuration"
	CategorySecurity       Category = "security"
	CategoryExternal       Category = "external_service"
	CategorySystem         Category = "system"
	CategoryBusinessLogic  Category = "business_logic"
)

// Severity ranks how loudly an error should be surfaced to operators.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Recovery is a machine-readable hint a client can act on.
type Recovery string

const (
	RecoveryRetry             Recovery = "retry"
	RecoveryRetryWithBackoff  Recovery = "retry-with-backoff"
	RecoveryRefreshToken      Recovery = "refresh-token"
	RecoveryLoginAgain        Recovery = "login-again"
	RecoveryCheckPermissions  Recovery = "check-permissions"
	RecoveryValidateInput     Recovery = "validate-input"
	RecoveryWaitAndRetry      Recovery = "wait-and-retry"
	RecoveryCheckNetwork      Recovery = "check-network"
	RecoveryCheckResource     Recovery = "check-resource"
	RecoveryContactSupport    Recovery = "contact-support"
)

// Error is the single error value the core ever returns. It is never
// subclassed; variation lives in its fields.
type Error struct {
	Code        string     `json:"code"`
	Category    Category   `json:"category"`
	Severity    Severity   `json:"severity"`
	UserMessage string     `json:"user_message"`
	Details     string     `json:"details,omitempty"`
	RequestID   string     `json:"request_id,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	Recovery    []Recovery `json:"recovery,omitempty"`
	DocsURL     string     `json:"docs_url,omitempty"`
	ShouldAlert bool       `json:"should_alert,omitempty"`
	cause       error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.UserMessage, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.UserMessage)
}

func (e *Error) Unwrap() error { return e.cause }

// WithRequestID attaches a request id and returns the same error for chaining.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithSession attaches session/user identifiers.
func (e *Error) WithSession(sessionID, userID string) *Error {
	e.SessionID = sessionID
	e.UserID = userID
	return e
}

// New builds an Error of a given category/code with a safe user message.
func New(code string, category Category, severity Severity, userMessage string) *Error {
	return &Error{Code: code, Category: category, Severity: severity, UserMessage: userMessage}
}

// Wrap builds an Error carrying a technical cause; Details is sanitized by the
// caller before being set (never raw selectors/secrets, per §4.5).
func Wrap(cause error, code string, category Category, severity Severity, userMessage string) *Error {
	return &Error{Code: code, Category: category, Severity: severity, UserMessage: userMessage, cause: cause}
}

// Common constructors for the recurring cases named across §4 and §8.

func Validation(field, reason string) *Error {
	return New("VALIDATION_FAILED", CategoryValidation, SeverityLow, fmt.Sprintf("invalid %s", field)).
		withDetails(reason).
		withRecovery(RecoveryValidateInput)
}

func SessionNotFound(sessionID string) *Error {
	return New("SESSION_NOT_FOUND", CategorySession, SeverityMedium, "session not found").
		WithSession(sessionID, "").
		withRecovery(RecoveryLoginAgain)
}

func SessionExpired(sessionID string, refreshStillValid bool) *Error {
	e := New("SESSION_EXPIRED", CategorySession, SeverityMedium, "session expired").WithSession(sessionID, "")
	if refreshStillValid {
		return e.withRecovery(RecoveryRefreshToken)
	}
	return e.withRecovery(RecoveryLoginAgain)
}

func Unauthenticated(reason string) *Error {
	return New("UNAUTHENTICATED", CategoryAuthentication, SeverityMedium, "authentication required").
		withDetails(reason).withRecovery(RecoveryLoginAgain)
}

func Unauthorized(reason string) *Error {
	return New("UNAUTHORIZED", CategoryAuthorization, SeverityMedium, "not permitted").
		withDetails(reason).withRecovery(RecoveryCheckPermissions)
}

func RateLimited(resetAt string) *Error {
	return New("RATE_LIMITED", CategoryRateLimit, SeverityLow, "rate limit exceeded").
		withDetails("reset_at="+resetAt).withRecovery(RecoveryWaitAndRetry)
}

func Timeout(op string) *Error {
	return New("TIMEOUT", CategoryResource, SeverityMedium, "operation timed out").
		withDetails(op).withRecovery(RecoveryRetryWithBackoff)
}

func Unavailable(reason string) *Error {
	return New("UNAVAILABLE", CategoryResource, SeverityHigh, "resource unavailable").
		withDetails(reason).withRecovery(RecoveryRetryWithBackoff)
}

func BrowserError(cause error, op string) *Error {
	return Wrap(cause, "BROWSER_ERROR", CategoryBrowser, SeverityHigh, "browser operation failed").
		withDetails(op).withRecovery(RecoveryRetryWithBackoff)
}

func NetworkError(cause error) *Error {
	return Wrap(cause, "NETWORK_ERROR", CategoryNetwork, SeverityMedium, "network error").
		withRecovery(RecoveryCheckNetwork, RecoveryRetryWithBackoff)
}

func Internal(cause error) *Error {
	return Wrap(cause, "INTERNAL", CategorySystem, SeverityCritical, "internal error").
		withRecovery(RecoveryContactSupport)
}

func Security(code, userMessage string) *Error {
	e := New(code, CategorySecurity, SeverityHigh, userMessage)
	e.ShouldAlert = true
	return e
}

func (e *Error) withDetails(d string) *Error {
	e.Details = d
	return e
}

func (e *Error) withRecovery(r ...Recovery) *Error {
	e.Recovery = append(e.Recovery, r...)
	return e
}

// ToHTTPStatus implements §7's protocol mapping table.
func (e *Error) ToHTTPStatus() int {
	switch e.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryAuthentication:
		return http.StatusUnauthorized
	case CategoryAuthorization:
		return http.StatusForbidden
	case CategorySession:
		return http.StatusUnauthorized
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryResource:
		if e.Code == "TIMEOUT" {
			return http.StatusGatewayTimeout
		}
		if e.Code == "UNAVAILABLE" {
			return http.StatusServiceUnavailable
		}
		return http.StatusNotFound
	case CategoryNetwork, CategoryBrowser, CategoryExternal:
		return http.StatusBadGateway
	case CategoryConfiguration, CategorySystem:
		return http.StatusInternalServerError
	case CategorySecurity:
		return http.StatusForbidden
	case CategoryBusinessLogic:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode mirrors google.golang.org/grpc/codes without importing the whole
// gRPC stack into the core (the gRPC frontend is out of scope; it only needs
// this numeric mapping).
type GRPCCode int

const (
	GRPCOK                 GRPCCode = 0
	GRPCInvalidArgument    GRPCCode = 3
	GRPCDeadlineExceeded   GRPCCode = 4
	GRPCNotFound           GRPCCode = 5
	GRPCAlreadyExists      GRPCCode = 6
	GRPCPermissionDenied   GRPCCode = 7
	GRPCResourceExhausted  GRPCCode = 8
	GRPCUnauthenticated    GRPCCode = 16
	GRPCInternal           GRPCCode = 13
	GRPCUnavailable        GRPCCode = 14
)

// ToGRPCCode implements §7's gRPC mapping.
func (e *Error) ToGRPCCode() GRPCCode {
	switch e.Category {
	case CategoryValidation:
		return GRPCInvalidArgument
	case CategoryAuthentication, CategorySession:
		return GRPCUnauthenticated
	case CategoryAuthorization, CategorySecurity:
		return GRPCPermissionDenied
	case CategoryRateLimit:
		return GRPCResourceExhausted
	case CategoryResource:
		if e.Code == "TIMEOUT" {
			return GRPCDeadlineExceeded
		}
		if e.Code == "UNAVAILABLE" {
			return GRPCUnavailable
		}
		return GRPCNotFound
	case CategoryBusinessLogic:
		return GRPCAlreadyExists
	default:
		return GRPCInternal
	}
}

// ToJSONRPCCode implements the MCP adapter's JSON-RPC-style code space.
// Standard JSON-RPC reserves -32700..-32600; application errors use
// -32000..-32099 per convention, partitioned here by category.
func (e *Error) ToJSONRPCCode() int {
	switch e.Category {
	case CategoryValidation:
		return -32602 // Invalid params
	case CategoryAuthentication, CategorySession:
		return -32001
	case CategoryAuthorization, CategorySecurity:
		return -32002
	case CategoryRateLimit:
		return -32003
	case CategoryResource:
		return -32004
	case CategoryNetwork, CategoryBrowser, CategoryExternal:
		return -32005
	default:
		return -32603 // Internal error
	}
}

// ValidationErrs accumulates field-level validation failures the way the
// teacher's config/session validators do, then collapses into one *Error.
type ValidationErrs struct {
	fields []fieldError
}

type fieldError struct {
	field  string
	reason string
}

// NewValidationErrs starts an accumulator.
func NewValidationErrs() *ValidationErrs {
	return &ValidationErrs{}
}

// Add records a field-level failure.
func (v *ValidationErrs) Add(field, reason string) {
	v.fields = append(v.fields, fieldError{field: field, reason: reason})
}

// Empty reports whether any failures were recorded.
func (v *ValidationErrs) Empty() bool { return len(v.fields) == 0 }

// Err collapses the accumulator into a single *Error, or nil if empty.
func (v *ValidationErrs) Err() error {
	if v.Empty() {
		return nil
	}
	details := ""
	for i, f := range v.fields {
		if i > 0 {
			details += "; "
		}
		details += fmt.Sprintf("%s: %s", f.field, f.reason)
	}
	return Validation("request", details)
}

// Package apierrors implements the PAPI error taxonomy: a fixed set of
// error kinds that every controller translates its internal failures into
// at the HTTP boundary, so no exception or stack detail ever leaves the
// API surface.
package apierrors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Kind is one of the taxonomy members from spec.md §7.
type Kind string

const (
	KindAuthFailed      Kind = "auth-failed"
	KindBadRequest      Kind = "bad-request"
	KindUnknownWorkload Kind = "unknown-workload"
	KindQuotaExceeded   Kind = "quota-exceeded"
	KindForbidden       Kind = "forbidden"
	KindBackendError    Kind = "backend-error"
	KindTimeout         Kind = "timeout"
	KindInternal        Kind = "internal-error"
)

// Message is the JSON body shape returned for every error response.
type Message struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`
	See    string `json:"see,omitempty"`
	Cause  error  `json:"-"`

	// Field carries a pointer to the offending field for bad-request
	// responses (spec §7: "body includes pointer to offending field").
	Field string `json:"field,omitempty"`

	// Resource/Limit/Current are set for quota-exceeded responses
	// (spec §7: "body names the constrained resource, the cap, and
	// current usage").
	Resource string `json:"resource,omitempty"`
	Limit    any    `json:"limit,omitempty"`
	Current  any    `json:"current,omitempty"`
}

func (m Message) String() string {
	lines := []string{m.Reason}
	if m.Advice != "" {
		lines = append(lines, m.Advice)
	}
	if m.Cause != nil {
		lines = append(lines, fmt.Sprint("caused by: ", m.Cause.Error()))
	}
	return strings.Join(lines, "\n")
}

func (m Message) Error() string { return m.String() }
func (m Message) Unwrap() error { return m.Cause }

func (m Message) MarshalJSON() ([]byte, error) {
	type wire Message
	return json.Marshal(wire(m))
}

// Option mutates a Message being built; mirrors the teacher's
// ErrorMessageOption functional-options idiom.
type Option func(*Message)

func WithAdvice(advice string) Option {
	return func(m *Message) {
		if advice != "" {
			m.Advice = advice
		}
	}
}

func WithError(err error) Option {
	return func(m *Message) {
		if err != nil {
			m.Cause = err
		}
	}
}

func WithField(field string) Option {
	return func(m *Message) {
		if field != "" {
			m.Field = field
		}
	}
}

func WithSee(see string) Option {
	return func(m *Message) {
		if see != "" {
			m.See = see
		}
	}
}

func WithOverflow(resource string, limit, current any) Option {
	return func(m *Message) {
		m.Resource = resource
		m.Limit = limit
		m.Current = current
	}
}

var statusByKind = map[Kind]int{
	KindAuthFailed:      http.StatusForbidden,
	KindBadRequest:      http.StatusBadRequest,
	KindUnknownWorkload: http.StatusNotFound,
	KindQuotaExceeded:   http.StatusTooManyRequests,
	KindForbidden:       http.StatusForbidden,
	KindBackendError:    http.StatusBadGateway,
	KindTimeout:         http.StatusGatewayTimeout,
	KindInternal:        http.StatusInternalServerError,
}

// New builds the *echo.HTTPError for a given taxonomy kind. The message is
// also set as the HTTPError's internal error so echo's own logger middleware
// can still see the cause.
func New(kind Kind, reason string, opts ...Option) *echo.HTTPError {
	msg := Message{Kind: kind, Reason: reason}
	for _, opt := range opts {
		opt(&msg)
	}
	return echo.NewHTTPError(statusByKind[kind], msg).SetInternal(msg)
}

func AuthFailed(reason string, opts ...Option) *echo.HTTPError {
	if reason == "" {
		reason = "authentication failed"
	}
	return New(KindAuthFailed, reason, opts...)
}

func BadRequest(reason string, opts ...Option) *echo.HTTPError {
	return New(KindBadRequest, reason, opts...)
}

func UnknownWorkload(kind, name string) *echo.HTTPError {
	return New(
		KindUnknownWorkload,
		fmt.Sprintf("no such workload: %s/%s", kind, name),
	)
}

// QuotaExceeded builds the quota-exceeded response. The HTTP status is 429
// per spec.md §6/§8 scenario S2; spec §7 additionally permits 402 but PAPI
// standardizes on 429 ("too many deployments") since admission denial is a
// rate/concurrency concept here, not a billing one.
func QuotaExceeded(resource string, limit, current any) *echo.HTTPError {
	return New(
		KindQuotaExceeded,
		"quota exceeded",
		WithOverflow(resource, limit, current),
	)
}

func Forbidden(reason string, opts ...Option) *echo.HTTPError {
	if reason == "" {
		reason = "forbidden"
	}
	return New(KindForbidden, reason, opts...)
}

// BackendError passes the upstream Scheduler/Registry/Secret-Store message
// through unchanged, per spec §7's propagation policy.
func BackendError(upstreamMessage string, cause error) *echo.HTTPError {
	return New(KindBackendError, upstreamMessage, WithError(cause))
}

func Timeout(reason string, cause error) *echo.HTTPError {
	if reason == "" {
		reason = "request to a backend service timed out"
	}
	return New(KindTimeout, reason, WithError(cause))
}

// Internal never leaks cause details into Reason; callers are expected to
// have already logged the full error via the Cause on their side.
func Internal(cause error) *echo.HTTPError {
	return New(KindInternal, "unexpected error", WithError(cause))
}

// Is reports whether err (an echo.HTTPError produced by this package, or
// any wrapping of one) carries the given taxonomy kind.
func Is(err error, kind Kind) bool {
	var he *echo.HTTPError
	if e, ok := err.(*echo.HTTPError); ok {
		he = e
	} else {
		return false
	}
	if msg, ok := he.Message.(Message); ok {
		return msg.Kind == kind
	}
	return false
}

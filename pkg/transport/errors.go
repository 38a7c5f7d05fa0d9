// ABOUTME: Failure classification for caller-facing error messages
// ABOUTME: Maps device, handshake, remote and network errors onto categories
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/input"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
)

// Category is a caller-facing failure class
type Category int

const (
	CategoryUnknown Category = iota
	CategoryPermission
	CategoryDevice
	CategoryCredentials
	CategoryQuota
	CategoryUnavailable
	CategoryNetwork
)

// Message returns the human-readable text shown to callers
func (c Category) Message() string {
	switch c {
	case CategoryPermission:
		return "microphone access denied"
	case CategoryDevice:
		return "audio device unavailable"
	case CategoryCredentials:
		return "credentials invalid"
	case CategoryQuota:
		return "quota exceeded"
	case CategoryUnavailable:
		return "service unavailable"
	case CategoryNetwork:
		return "network error"
	default:
		return "connection failed"
	}
}

func (c Category) String() string {
	switch c {
	case CategoryPermission:
		return "permission"
	case CategoryDevice:
		return "device"
	case CategoryCredentials:
		return "credentials"
	case CategoryQuota:
		return "quota"
	case CategoryUnavailable:
		return "unavailable"
	case CategoryNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// StatusError is a failed websocket handshake with its HTTP status
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("handshake failed with HTTP %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// RemoteError is an error reported by the remote agent in-band
type RemoteError struct {
	// Code is an HTTP-style or websocket close code, zero if absent
	Code int
	// Status is a symbolic code such as RESOURCE_EXHAUSTED
	Status  string
	Message string
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != "" && e.Code != 0:
		return fmt.Sprintf("remote error %d %s: %s", e.Code, e.Status, e.Message)
	case e.Status != "":
		return fmt.Sprintf("remote error %s: %s", e.Status, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	default:
		return fmt.Sprintf("remote error: %s", e.Message)
	}
}

// Classify maps an error onto a category
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errors.Is(err, input.ErrPermissionDenied):
		return CategoryPermission
	case errors.Is(err, input.ErrDeviceUnavailable),
		errors.Is(err, output.ErrDeviceUnavailable):
		return CategoryDevice
	case errors.Is(err, ErrUnauthorized):
		return CategoryCredentials
	}

	var status *StatusError
	if errors.As(err, &status) {
		if c := classifyCode(status.StatusCode); c != CategoryUnknown {
			return c
		}
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		if c := classifyStatus(remote.Status); c != CategoryUnknown {
			return c
		}
		if c := classifyCode(remote.Code); c != CategoryUnknown {
			return c
		}
		if c := classifyText(remote.Message); c != CategoryUnknown {
			return c
		}
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}

	return classifyText(err.Error())
}

// Describe returns the caller-facing message for err
func Describe(err error) string {
	return Classify(err).Message()
}

func classifyCode(code int) Category {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return CategoryCredentials
	case code == http.StatusTooManyRequests:
		return CategoryQuota
	case code == http.StatusNotFound, code >= 500 && code < 600:
		return CategoryUnavailable
	// Websocket close codes used for rejected sessions
	case code == 1008:
		return CategoryCredentials
	case code == 1011, code == 1013:
		return CategoryUnavailable
	}
	return CategoryUnknown
}

func classifyStatus(status string) Category {
	switch strings.ToUpper(status) {
	case "UNAUTHENTICATED", "PERMISSION_DENIED", "UNAUTHORIZED":
		return CategoryCredentials
	case "RESOURCE_EXHAUSTED", "QUOTA_EXCEEDED":
		return CategoryQuota
	case "UNAVAILABLE", "INTERNAL", "NOT_FOUND", "DEADLINE_EXCEEDED":
		return CategoryUnavailable
	}
	return CategoryUnknown
}

func classifyText(msg string) Category {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "api key"), strings.Contains(msg, "credential"), strings.Contains(msg, "unauthorized"):
		return CategoryCredentials
	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"):
		return CategoryQuota
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "overloaded"):
		return CategoryUnavailable
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "broken pipe"):
		return CategoryNetwork
	}
	return CategoryUnknown
}

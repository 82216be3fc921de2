// Package telemetry ships exception events to PostHog. Delivery is strictly
// best effort: a telemetry outage must never affect request handling.
package telemetry

import (
	"crypto/sha256"
	"fmt"
)

const distinctID = "server-webhooks"

// Event is one PostHog capture call.
type Event struct {
	APIKey     string      `json:"api_key"`
	Name       string      `json:"event"`
	DistinctID string      `json:"distinct_id"`
	Properties *Properties `json:"properties,omitempty"`
	Timestamp  *string     `json:"timestamp,omitempty"`
}

// Properties carries the exception payload.
type Properties struct {
	ExceptionList        []ExceptionItem `json:"$exception_list,omitempty"`
	ExceptionFingerprint string          `json:"$exception_fingerprint"`
	Status               *int            `json:"status,omitempty"`
	Path                 *string         `json:"path,omitempty"`
}

// ExceptionItem describes one captured error.
type ExceptionItem struct {
	Type       string      `json:"type"`
	Value      string      `json:"value"`
	Stacktrace *StackTrace `json:"stacktrace,omitempty"`
}

// StackTrace is the (possibly empty) frame list attached to an exception.
type StackTrace struct {
	Kind   string  `json:"type"`
	Frames []Frame `json:"frames"`
}

// Frame is one stack frame.
type Frame struct {
	Function *string `json:"function,omitempty"`
	Filename *string `json:"filename,omitempty"`
	Lineno   *int    `json:"lineno,omitempty"`
	Colno    *int    `json:"colno,omitempty"`
	InApp    *bool   `json:"in_app,omitempty"`
}

// NewHTTPException builds a $exception event for a failed HTTP request.
// Events with the same status and path share a fingerprint so PostHog groups
// them.
func NewHTTPException(apiKey, value string, status int, path string) Event {
	fingerprint := fingerprintOf(fmt.Sprintf("HTTPError|%d|%s", status, path))
	return Event{
		APIKey:     apiKey,
		Name:       "$exception",
		DistinctID: distinctID,
		Properties: &Properties{
			ExceptionList: []ExceptionItem{{
				Type:       "HTTPError",
				Value:      value,
				Stacktrace: &StackTrace{Kind: "raw", Frames: []Frame{}},
			}},
			ExceptionFingerprint: fingerprint,
			Status:               &status,
			Path:                 &path,
		},
	}
}

// NewGeneralException builds a $exception event for a non-HTTP failure.
func NewGeneralException(apiKey, value, title string) Event {
	fingerprint := fingerprintOf(fmt.Sprintf("%s|%s|", value, title))
	return Event{
		APIKey:     apiKey,
		Name:       "$exception",
		DistinctID: distinctID,
		Properties: &Properties{
			ExceptionList: []ExceptionItem{{
				Type:       title,
				Value:      value,
				Stacktrace: &StackTrace{Kind: "raw", Frames: []Frame{}},
			}},
			ExceptionFingerprint: fingerprint,
		},
	}
}

func fingerprintOf(input string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(input)))
}

package models

import "fmt"

// ErrorKind is the stable failure taxonomy. Every network-boundary failure is
// converted to exactly one kind before being surfaced; raw transport errors
// never leak past classification.
type ErrorKind string

const (
	KindQuota      ErrorKind = "quota"
	KindRateLimit  ErrorKind = "rate_limit"
	KindValidation ErrorKind = "validation"
	KindServer     ErrorKind = "server"
	KindNetwork    ErrorKind = "network"
	KindUnknown    ErrorKind = "unknown"
	KindParsing    ErrorKind = "parsing"
)

// QuotaSnapshot is the usage allowance reported alongside a quota error.
type QuotaSnapshot struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// ValidationError is the classified form of any failure at a network
// boundary. It is immutable and terminal for the operation that produced it.
type ValidationError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int    // 0 when no response was received
	Code       string // backend error code, when the body carried one
	Quota      *QuotaSnapshot
	UpgradeURL string // next-action URL for quota errors
	Op         string // operation that failed, e.g. "submit validation"
}

func (e *ValidationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Op, e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
}

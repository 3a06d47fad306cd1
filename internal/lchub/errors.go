package lchub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/ripclass/lcvalidate/pkg/models"
)

// errorBody is the shape the API uses for error responses. Every field is
// optional and decoding is lenient: a garbled body still classifies by
// status code alone.
type errorBody struct {
	Message    string                `json:"message"`
	ErrorCode  string                `json:"error_code"`
	Quota      *models.QuotaSnapshot `json:"quota"`
	UpgradeURL string                `json:"upgrade_url"`
}

// ClassifyResponse maps a non-2xx response to a ValidationError. This is the
// single place status codes are interpreted; call sites never branch on
// status themselves.
func ClassifyResponse(op string, status int, body []byte) *models.ValidationError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	verr := &models.ValidationError{
		Message:    eb.Message,
		StatusCode: status,
		Op:         op,
	}

	switch {
	case status == http.StatusPaymentRequired:
		verr.Kind = models.KindQuota
		verr.Quota = eb.Quota
		verr.UpgradeURL = eb.UpgradeURL
		if verr.Message == "" {
			verr.Message = "validation quota exhausted"
		}
	case status == http.StatusTooManyRequests:
		verr.Kind = models.KindRateLimit
		if verr.Message == "" {
			verr.Message = "rate limit exceeded"
		}
	case status >= 400 && status < 500:
		verr.Kind = models.KindValidation
		verr.Code = eb.ErrorCode
		if verr.Message == "" {
			verr.Message = "request rejected"
		}
	case status >= 500:
		verr.Kind = models.KindServer
		verr.Code = eb.ErrorCode
		if verr.Message == "" {
			verr.Message = "validation service error"
		}
	default:
		verr.Kind = models.KindUnknown
		verr.Message = fmt.Sprintf("unexpected status %d", status)
	}

	return verr
}

// ClassifyTransport maps an error from sending the request to a
// ValidationError. A request that went out but got no response is network;
// a failure before the request existed is unknown.
func ClassifyTransport(op string, err error) *models.ValidationError {
	verr := &models.ValidationError{
		Kind:    models.KindUnknown,
		Message: err.Error(),
		Op:      op,
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		verr.Kind = models.KindNetwork
		return verr
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		verr.Kind = models.KindNetwork
		return verr
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		verr.Kind = models.KindNetwork
	}

	return verr
}

// ClassifyParsing marks a successful response whose payload could not be
// decoded or did not match the expected shape. Kept distinct from server and
// network failures: the operation succeeded, the payload was unreadable.
func ClassifyParsing(op string, err error) *models.ValidationError {
	return &models.ValidationError{
		Kind:    models.KindParsing,
		Message: fmt.Sprintf("decoding response: %v", err),
		Op:      op,
	}
}

// localError wraps a failure that happened before any request was built.
func localError(op string, kind models.ErrorKind, msg string) *models.ValidationError {
	return &models.ValidationError{Kind: kind, Message: msg, Op: op}
}

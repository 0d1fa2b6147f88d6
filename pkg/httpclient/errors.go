package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// backendErrorBody covers the two error shapes the shop backend emits: the
// framework default ({"status","error","message","path"}) and the
// {"error":{"code","message"}} envelope.
type backendErrorBody struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Path    string          `json:"path"`
	Error   json.RawMessage `json:"error"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError carrying the matching sentinel. The body is consumed and
// closed.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Remote(service, fmt.Errorf("status %d (failed to read body: %w)", resp.StatusCode, err))
	}

	code, message := decodeErrorBody(bodyBytes)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return mapBackendError(resp.StatusCode, code, message, service)
}

func decodeErrorBody(body []byte) (code, message string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ""
	}

	var parsed backendErrorBody
	if json.Unmarshal(body, &parsed) != nil {
		return "", trimmed
	}

	var env envelopeError
	if len(parsed.Error) > 0 && json.Unmarshal(parsed.Error, &env) == nil && env.Message != "" {
		return env.Code, env.Message
	}
	if parsed.Message != "" {
		return "", parsed.Message
	}

	var plain string
	if len(parsed.Error) > 0 && json.Unmarshal(parsed.Error, &plain) == nil {
		return "", plain
	}
	return "", ""
}

func mapBackendError(status int, code, message, service string) error {
	qualified := fmt.Sprintf("%s: %s", service, message)

	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{
			Code:    "NOT_FOUND",
			Message: qualified,
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified)
	case status >= 500:
		return apperrors.Remote(service, fmt.Errorf("status %d: %s", status, message))
	default:
		if code == "" {
			code = "REMOTE_REJECTED"
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualified,
			Status:  status,
			Err:     apperrors.ErrRemote,
		}
	}
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

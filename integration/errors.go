package integration

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a vendor error normalized to one shape regardless of
// which envelope the vendor used on the wire.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// ParseErrorEnvelope normalizes the three error shapes seen across
// vendor APIs: {"status":"error","message":...}, {"errors":[...]} and
// a bare array of {"errorCode":...,"message":...} objects. Returns nil
// when the body carries no recognizable error.
func ParseErrorEnvelope(body []byte) *APIError {
	if len(body) == 0 {
		return nil
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var items []struct {
			ErrorCode string `json:"errorCode"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(body, &items); err == nil && len(items) > 0 &&
			(items[0].ErrorCode != "" || items[0].Message != "") {
			return &APIError{Code: items[0].ErrorCode, Message: items[0].Message}
		}
		return nil
	}

	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Code    string `json:"code"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Status == "error" {
		return &APIError{Code: envelope.Code, Message: envelope.Message}
	}
	if len(envelope.Errors) > 0 {
		return &APIError{Code: envelope.Errors[0].Code, Message: envelope.Errors[0].Message}
	}
	if envelope.Error.Message != "" || envelope.Error.Code != "" {
		return &APIError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	return nil
}

// parseEmbeddedError catches the failure shape some vendors hide
// behind a success status: a bare array of errorCode/message pairs
// where the caller expected data. A data array never carries
// errorCode, so the code is required before the body is treated as an
// error.
func parseEmbeddedError(body []byte) *APIError {
	if !strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		return nil
	}

	var items []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &items); err != nil || len(items) == 0 {
		return nil
	}
	if items[0].ErrorCode == "" {
		return nil
	}

	return &APIError{Code: items[0].ErrorCode, Message: items[0].Message}
}

// IsAuthExpiredError reports whether the vendor rejected the request
// for a stale session, which callers handle with one token refresh and
// a single retry.
func IsAuthExpiredError(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}

	switch apiErr.Code {
	case "INVALID_SESSION_ID", "401", "invalid_token":
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "session expired")
}

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 30 * time.Second

// RequestOptions describes one vendor API call. Body is JSON encoded
// unless FormBody or RawBody is set; RawBody passes bytes through
// untouched for multipart payloads.
type RequestOptions struct {
	Method    string
	URL       string
	Endpoint  string
	Headers   map[string]string
	URLParams map[string]string
	Body      interface{}
	FormBody  url.Values
	RawBody   []byte
	// ReturnRaw skips JSON decoding and hands back the raw body, for
	// multipart responses and vendors returning 204 with no body.
	ReturnRaw bool
}

// MakeRequest executes one vendor API call and decodes the response
// into respBody, normalizing failure statuses into APIError.
func MakeRequest(opts RequestOptions) (int, []byte, interface{}, error) {
	rootURL := opts.URL
	if !strings.HasPrefix(rootURL, "http") {
		rootURL = "https://" + rootURL
	}

	var reqBody []byte
	var err error
	if opts.RawBody != nil {
		reqBody = opts.RawBody
	} else if opts.FormBody != nil {
		reqBody = []byte(opts.FormBody.Encode())
	} else if opts.Body != nil {
		reqBody, err = json.Marshal(opts.Body)
		if err != nil {
			log.WithError(err).Error("Failed to marshal request object")
			return 0, nil, nil, errors.Wrap(err, "marshal request body")
		}
	}

	urlParamString := ""
	for key, value := range opts.URLParams {
		if urlParamString != "" {
			urlParamString = urlParamString + "&"
		}
		urlParamString = urlParamString + fmt.Sprintf("%s=%s", key, url.QueryEscape(value))
	}
	requestURL := rootURL + opts.Endpoint
	if urlParamString != "" {
		requestURL = requestURL + "?" + urlParamString
	}

	request, err := http.NewRequest(opts.Method, requestURL, bytes.NewBuffer(reqBody))
	if err != nil {
		log.WithError(err).Error("Failed to create request object")
		return 0, nil, nil, errors.Wrap(err, "build request")
	}
	if opts.FormBody != nil {
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else if opts.RawBody == nil && opts.Body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for headerKey, headerValue := range opts.Headers {
		request.Header.Set(headerKey, headerValue)
	}

	client := &http.Client{Timeout: requestTimeout}
	response, err := client.Do(request)
	if err != nil {
		log.WithError(err).Error("Failed to execute request")
		return http.StatusInternalServerError, nil, nil, errors.Wrap(err, "execute request")
	}
	defer response.Body.Close()

	responseBytes, err := io.ReadAll(response.Body)
	if err != nil {
		log.WithError(err).Error("Failed to read response as bytes.")
		return response.StatusCode, nil, nil, errors.Wrap(err, "read response body")
	}
	logCtx := log.WithField("response_status", response.Status).
		WithField("request_url", requestURL)

	if response.StatusCode >= http.StatusBadRequest {
		logCtx.WithField("response_body", string(responseBytes)).
			Warn("Received error response on http request.")
		if apiErr := ParseErrorEnvelope(responseBytes); apiErr != nil {
			return response.StatusCode, responseBytes, nil, apiErr
		}
		return response.StatusCode, responseBytes, nil,
			&APIError{Code: fmt.Sprintf("%d", response.StatusCode), Message: string(responseBytes)}
	}

	// Some vendors report failures inside a success status, as a bare
	// array of errorCode/message pairs. Normalize those too so expired
	// sessions reach the refresh and retry path.
	if apiErr := parseEmbeddedError(responseBytes); apiErr != nil {
		logCtx.WithField("response_body", string(responseBytes)).
			Warn("Received error envelope with success status on http request.")
		return response.StatusCode, responseBytes, nil, apiErr
	}

	if opts.ReturnRaw || len(responseBytes) == 0 {
		return response.StatusCode, responseBytes, nil, nil
	}

	var respBody interface{}
	if err := json.Unmarshal(responseBytes, &respBody); err != nil {
		logCtx.WithError(err).Error("Failed to decode response body.")
		return response.StatusCode, responseBytes, nil, errors.Wrap(err, "decode response body")
	}

	return response.StatusCode, responseBytes, respBody, nil
}

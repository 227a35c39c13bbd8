package gateway

import (
	"errors"
	"net/http"

	"github.com/lexiqai/tts-gateway/internal/audio"
	"github.com/lexiqai/tts-gateway/internal/tts"
)

const (
	msgTextRequired      = "Text is required."
	msgMalformedJSON     = "Malformed JSON in payload"
	msgPayloadTooLarge   = "Payload too large"
	msgInternalError     = "Error occurred while processing the request."
	msgServiceBusy       = "Service is busy, try again later."
	maxRequestBodyBytes  = 1 << 20
	contentTypeJSON      = "application/json; charset=utf-8"
	contentTypePlainText = "text/plain; charset=utf-8"
)

// ErrBusy is returned when no synthesis slot frees up before the request is abandoned
var ErrBusy = errors.New("synthesis capacity exhausted")

// ValidationError is a user-correctable problem with a request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// MalformedPayloadError is a request body that could not be parsed
type MalformedPayloadError struct {
	Err      error
	TooLarge bool
}

func (e *MalformedPayloadError) Error() string {
	if e.TooLarge {
		return "request body too large: " + e.Err.Error()
	}
	return "malformed request body: " + e.Err.Error()
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// errorResponse is how an error is rendered to the client
type errorResponse struct {
	status      int
	contentType string
	body        any // JSON object, or string for plain text
	kind        string
}

// classify maps an error onto the response the client sees. Only validation and
// payload errors expose details; everything else gets the generic body.
func classify(err error) errorResponse {
	var validationErr *ValidationError
	var payloadErr *MalformedPayloadError
	var upstreamErr *tts.UpstreamError
	var storageErr *audio.StorageError

	switch {
	case errors.As(err, &validationErr):
		return errorResponse{
			status:      http.StatusBadRequest,
			contentType: contentTypeJSON,
			body:        map[string]string{"error": validationErr.Message},
			kind:        "validation",
		}

	case errors.As(err, &payloadErr) && payloadErr.TooLarge:
		return errorResponse{
			status:      http.StatusRequestEntityTooLarge,
			contentType: contentTypeJSON,
			body:        map[string]string{"message": msgPayloadTooLarge},
			kind:        "payload_too_large",
		}

	case errors.As(err, &payloadErr):
		return errorResponse{
			status:      http.StatusBadRequest,
			contentType: contentTypeJSON,
			body:        map[string]string{"message": msgMalformedJSON},
			kind:        "malformed_payload",
		}

	case errors.Is(err, ErrBusy):
		return errorResponse{
			status:      http.StatusServiceUnavailable,
			contentType: contentTypePlainText,
			body:        msgServiceBusy,
			kind:        "busy",
		}

	case errors.As(err, &upstreamErr):
		return errorResponse{
			status:      http.StatusInternalServerError,
			contentType: contentTypePlainText,
			body:        msgInternalError,
			kind:        "upstream",
		}

	case errors.As(err, &storageErr):
		return errorResponse{
			status:      http.StatusInternalServerError,
			contentType: contentTypePlainText,
			body:        msgInternalError,
			kind:        "storage",
		}
	}

	return errorResponse{
		status:      http.StatusInternalServerError,
		contentType: contentTypePlainText,
		body:        msgInternalError,
		kind:        "internal",
	}
}

package models

import "encoding/json"

// ErrorHeader mirrors the error payload in a response header, for
// transport layers that strip response bodies.
const ErrorHeader = "X-Archive-Error"

// Content types used in pipeline responses.
const (
	ContentTypePNG = "image/png"
	ContentTypeZip = "application/zip"
)

// ClassifiedError is a pipeline failure enriched with an HTTP-like status
// and, where relevant, the location that triggered it.
type ClassifiedError struct {
	Message    string    `json:"error"`
	StatusCode int       `json:"-"`
	Location   *Location `json:"location,omitempty"`
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

// NewClassifiedError builds a classified error with no attached location.
func NewClassifiedError(statusCode int, message string) *ClassifiedError {
	return &ClassifiedError{Message: message, StatusCode: statusCode}
}

// WithLocation returns a copy of the error carrying the offending
// location.
func (e *ClassifiedError) WithLocation(loc Location) *ClassifiedError {
	return &ClassifiedError{
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Location:   &loc,
	}
}

// HTTPResponse is the uniform result envelope the pipeline produces for
// both success and failure.
type HTTPResponse struct {
	StatusCode int
	Body       any
	Headers    map[string]string
}

// NewHTTPResponse builds an envelope, optionally setting a Content-Type.
func NewHTTPResponse(body any, statusCode int, contentType string) HTTPResponse {
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return HTTPResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers:    headers,
	}
}

// NewErrorResponse encodes a classified error as an envelope, mirroring
// the error JSON in the error header.
func NewErrorResponse(cerr *ClassifiedError) HTTPResponse {
	resp := NewHTTPResponse(cerr, cerr.StatusCode, "")
	if encoded, err := json.Marshal(cerr); err == nil {
		resp.Headers[ErrorHeader] = string(encoded)
	}
	return resp
}

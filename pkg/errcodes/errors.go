package errcodes

import (
	"fmt"
	"net/http"
)

// Error is a client-facing failure of an HTTP route.
type Error struct {
	HTTPCode int
	Message  string
	Code     string
}

func (err *Error) Error() string {
	return err.Message
}

// Is matches another Error with the same status, code and message.
func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// NotFound returns a 404 for a missing user, job or route.
func NotFound(resource string) error {
	return &Error{
		http.StatusNotFound,
		resource + " not found.",
		"not_found",
	}
}

// Unauthorized is returned by admin routes called without a valid API key.
func Unauthorized() error {
	return &Error{
		http.StatusUnauthorized,
		"A valid X-Api-Key header is required.",
		"unauthorized",
	}
}

// Unavailable returns a 503 error so that the caller retries later.
func Unavailable(msg string) error {
	return &Error{
		http.StatusServiceUnavailable,
		msg,
		"service_unavailable",
	}
}

// UnsupportedMediaType rejects admin request bodies that are not JSON.
func UnsupportedMediaType() error {
	return &Error{
		http.StatusUnsupportedMediaType,
		"Unsupported Media Type",
		"unsupported_media_type",
	}
}

// UnknownParameter rejects query or body fields the route does not accept.
func UnknownParameter(param string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		fmt.Sprintf("Unknown Parameter %q", param),
		"unknown_parameter",
	}
}

// ValidationTypeError reports a field of the wrong JSON or query type.
func ValidationTypeError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_type_error",
	}
}

// ValidationError reports a field that failed a validate tag, such as a
// rename template with unbalanced braces.
func ValidationError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_error",
	}
}

// MalformedPayload rejects bodies that are not valid JSON, including webhook
// updates.
func MalformedPayload() error {
	return &Error{
		http.StatusBadRequest,
		"Malformed Payload",
		"malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		http.StatusBadRequest,
		"Request body can't be empty.",
		"empty_request_body",
	}
}

package comfyui

import "errors"

var (
	ErrNoPromptID       = errors.New("response did not contain a prompt_id")
	ErrUploadNameAbsent = errors.New("upload response did not contain a file name")
)

// HTTPStatusError reports a non-200 answer from the ComfyUI server.
type HTTPStatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return "HTTP " + itoa(e.StatusCode) + " from " + e.Endpoint
	}
	return "[" + itoa(e.StatusCode) + "] " + e.Body
}

// IsHTTPStatus reports whether err carries the given status code.
func IsHTTPStatus(err error, code int) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.StatusCode == code
}

package dump

import "fmt"

// Error codes.
const (
	CodeParameterRange = "parameter_out_of_range"
	CodeCapture        = "capture_failed"
	CodeEncode         = "encode_failed"
	CodeDispatch       = "dispatch_failed"
)

// Error represents a dump failure with a stable code.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func checkRange(name string, min, max, value int) error {
	if value < min || value > max {
		return newError(CodeParameterRange, nil, "%s must be between %d and %d, got %d", name, min, max, value)
	}
	return nil
}

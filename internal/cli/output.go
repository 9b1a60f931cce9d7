package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/erlorenz/go-prefs/codec"
	"github.com/erlorenz/go-prefs/prefs"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Stored data could not be read or written
	ExitCommandError = 2 // Bad flags, config or arguments
	ExitNotFound     = 3 // Key not set and no default given
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error
	ErrCodeConfig   = "E002" // Config could not be loaded
	ErrCodeStore    = "E003" // Underlying store failed
	ErrCodeDecode   = "E004" // Stored entry could not be decoded
	ErrCodeNotFound = "E005" // Key not set
	ErrCodeEncode   = "E006" // Value could not be encoded
	ErrCodeUsage    = "E007" // Bad arguments or value type
)

// ExitError represents an error with a specific exit code.
// Commands return it after the error was already reported to the user.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps an error to its CLI error code and exit code.
func classify(err error) (string, int) {
	var (
		decodeErr *prefs.DecodeError
		encodeErr *prefs.EncodeError
		storeErr  *prefs.StoreError
	)
	switch {
	case errors.As(err, &decodeErr):
		return ErrCodeDecode, ExitFailure
	case errors.As(err, &encodeErr):
		return ErrCodeEncode, ExitFailure
	case errors.As(err, &storeErr):
		return ErrCodeStore, ExitFailure
	case errors.Is(err, prefs.ErrTypeMismatch), errors.Is(err, codec.ErrInvalid):
		return ErrCodeUsage, ExitCommandError
	}
	return ErrCodeGeneric, ExitFailure
}

// fail reports err through f and returns it as an ExitError. Errors that
// are already ExitErrors were reported before and pass through.
func fail(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	code, exit := classify(err)
	f.Error(code, err.Error(), nil)
	return WrapExitError(exit, code, err)
}

// failWith reports err under an explicit code.
func failWith(f *OutputFormatter, exit int, code string, err error) error {
	f.Error(code, err.Error(), nil)
	return WrapExitError(exit, code, err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostics and text errors (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`         // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`             // "E001", "E002", etc.
	Message string `json:"message"`          // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. Text
// output uses the String method when data has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if s, ok := data.(fmt.Stringer); ok {
		_, err := fmt.Fprintln(f.Writer, s.String())
		return err
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// It always writes to the diagnostic writer so JSON output stays intact.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

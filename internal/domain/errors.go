package domain

import "errors"

// Error taxonomy shared by every component. Wrap these with fmt.Errorf("...: %w").
var (
	// ErrNetwork marks fetch/download failures; the user may retry the action.
	ErrNetwork = errors.New("network error")
	// ErrValidation marks input that can never succeed as given.
	ErrValidation = errors.New("validation error")
	// ErrAuth marks a missing or rejected credential.
	ErrAuth = errors.New("permission denied")
	// ErrFilesystem marks local workspace failures.
	ErrFilesystem = errors.New("filesystem error")
)

// KindOf returns a stable label for the error class of err.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "internal"
	}
}

package oops

import "strings"

// Input was rejected before touching any store. Required and Allowed are
// hints for API clients and are rendered alongside the message.
type ValidationError struct {
	Message  string
	Required []string
	Allowed  []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Returns a ValidationError naming the fields that were left empty, or nil if
// none were. fields alternates name, value.
func RequireFields(fields ...string) error {
	var missing []string
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			missing = append(missing, fields[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{
		Message:  "Missing required fields",
		Required: missing,
	}
}

func NotAllowed(message string, allowed ...string) error {
	return &ValidationError{
		Message: message,
		Allowed: allowed,
	}
}

package engine

import (
	"errors"
	"fmt"
)

// RegistrationError reports that the wake-callback backend refused a
// registration (quota, permission). The engine never crashes on these; it
// surfaces them so the caller can warn that reminders may be unreliable,
// and relies on the next boot-restore pass or an explicit retry to
// re-register.
type RegistrationError struct {
	ReminderID string
	OffsetMs   int64
	Err        error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register trigger for reminder %s offset %dms: %v", e.ReminderID, e.OffsetMs, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// IsRegistrationError reports whether err is (or wraps) a RegistrationError.
func IsRegistrationError(err error) bool {
	var re *RegistrationError
	return errors.As(err, &re)
}

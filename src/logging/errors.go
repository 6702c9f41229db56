package logging

import "strings"

// IsTransient reports whether err looks like a temporary infrastructure
// failure worth retrying: connection drops, timeouts, lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"timeout",
		"deadlock",
		"try again",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

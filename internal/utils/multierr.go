package utils

import "strings"

// MultiError collects failures of independent steps that must not stop a batch.
// The zero value is ready to use.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	return strings.Join(m.Messages(), "; ")
}

// Add records err. Nil errors are ignored.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Len returns the number of collected errors.
func (m *MultiError) Len() int {
	return len(m.Errors)
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Err returns nil when nothing was collected, so callers can return it directly.
func (m *MultiError) Err() error {
	if m == nil || len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Messages returns the collected error strings, never nil.
func (m *MultiError) Messages() []string {
	msgs := make([]string, 0, len(m.Errors))
	for _, err := range m.Errors {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

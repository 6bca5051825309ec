package utils

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiError(t *testing.T) {
	var errs MultiError
	require.NoError(t, errs.Err(), "empty collection should not be an error")

	errs.Add(nil)
	require.Equal(t, 0, errs.Len())

	errs.Add(errors.New("first"))
	errs.Add(os.ErrNotExist)
	require.Equal(t, 2, errs.Len())
	require.EqualError(t, errs.Err(), "first; file does not exist")
	require.ErrorIs(t, errs.Err(), os.ErrNotExist)
	require.Equal(t, []string{"first", "file does not exist"}, errs.Messages())
}

func TestMultiErrorMessagesEmpty(t *testing.T) {
	var errs MultiError
	require.NotNil(t, errs.Messages())
	require.Empty(t, errs.Messages())
}

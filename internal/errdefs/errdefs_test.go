package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "plain", err: errors.New("boom"), want: nil},
		{name: "invalid argument", err: InvalidArgument("Locations.New", "site name is empty"), want: ErrInvalidArgument},
		{name: "not found", err: NotFound("fetch", "doc %q", "abc"), want: ErrNotFound},
		{name: "unavailable", err: Unavailable("Subscriptions.New", cause), want: ErrStoreUnavailable},
		{name: "configuration", err: Configuration("AcquisitionEra is required"), want: ErrConfiguration},
		{name: "compilation", err: Compilation(cause, "discovery failed"), want: ErrCompilation},
		{name: "wrapped", err: fmt.Errorf("register: %w", Unavailable("x", cause)), want: ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := Unavailable("Locations.New", cause)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(InvalidArgument("op", "bad")))
	assert.Equal(t, "Locations.New: store unavailable: database is locked", err.Error())
}

func TestErrorMessage(t *testing.T) {
	err := InvalidArgument("Filesets.New", "fileset name is empty")
	assert.Equal(t, "Filesets.New: invalid argument: fileset name is empty", err.Error())

	err = Configuration("SkimInput %q is not an output module", "DQM")
	assert.Equal(t, `configuration error: SkimInput "DQM" is not an output module`, err.Error())
}

package sync

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cephasgm/safety-sync/internal/cache"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/remote"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "unreachable", err: fmt.Errorf("fetch: %w", remote.ErrUnreachable), want: KindUnreachable},
		{name: "unauthorized", err: fmt.Errorf("fetch: %w", remote.ErrUnauthorized), want: KindUnauthorized},
		{name: "batch rejected", err: fmt.Errorf("commit: %w", remote.ErrBatchRejected), want: KindPartialBatchFailure},
		{name: "already running", err: guard.ErrAlreadyRunning, want: KindAlreadyRunning},
		{name: "malformed", err: fmt.Errorf("%w: bad json", cache.ErrMalformedData), want: KindMalformedLocalData},
		{name: "structured error keeps kind", err: &Error{Message: "x", Kind: KindUnauthorized}, want: KindUnauthorized},
		{name: "unknown", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestNewError(t *testing.T) {
	t.Parallel()

	err := NewError(remote.ErrUnreachable, "Fetch failed for %s", "incidents")
	assert.Equal(t, KindUnreachable, err.Kind)
	assert.Equal(t, "Fetch failed for incidents: remote store unreachable", err.Error())
	assert.ErrorIs(t, err, remote.ErrUnreachable)
}

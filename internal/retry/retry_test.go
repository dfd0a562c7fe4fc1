package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/config"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_DisabledCallsOnce(t *testing.T) {
	calls := 0
	err := None().Do(context.Background(), func() error {
		calls++
		return errTransient
	}, nil)

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUpToMaxAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return errTransient
	}, nil)

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errTransient
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	errBadRequest := errors.New("bad request")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return errBadRequest
	}, func(err error) bool { return errors.Is(err, errTransient) })

	require.ErrorIs(t, err, errBadRequest)
	assert.Equal(t, 1, calls)
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{MaxAttempts: 4, InitialIntervalMsec: 100, MaxIntervalMsec: 2000})

	assert.True(t, p.Enabled())
	assert.Equal(t, 100*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 2*time.Second, p.MaxInterval)
}

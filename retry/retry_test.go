package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_SucceedsFirstAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: 0}

	history, err := p.Do(context.Background(), func(context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.NoError(t, history[0].Err)
}

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond}

	calls := 0
	history, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, history, 3)
	assert.Error(t, history[0].Err)
	assert.Error(t, history[1].Err)
	assert.NoError(t, history[2].Err)
}

func TestPolicy_Exhaustion(t *testing.T) {
	p := Policy{MaxAttempts: 2, Delay: time.Millisecond}

	boom := errors.New("boom")
	history, err := p.Do(context.Background(), func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, history, 2)
	for i, a := range history {
		assert.Equal(t, i+1, a.Number)
		assert.Error(t, a.Err)
	}
}

func TestPolicy_ContextCancelled(t *testing.T) {
	p := Policy{MaxAttempts: 5, Delay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	history, err := p.Do(ctx, func(context.Context) error {
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, history, 1)
}

func TestPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	p := Policy{}

	calls := 0
	history, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, history, 1)
}

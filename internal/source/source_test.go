package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RestartsAfterContextCancel(t *testing.T) {
	var r runner
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, r.start(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func(error) { t.Error("cancellation is not a failure") }))
	assert.True(t, r.running())

	cancel()
	assert.Eventually(t, func() bool { return !r.running() }, time.Second, 5*time.Millisecond)

	started := make(chan struct{})
	require.True(t, r.start(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}, func(error) {}))
	<-started
	r.stop()
	assert.False(t, r.running())
}

func TestRunner_FailureReleases(t *testing.T) {
	var r runner
	failed := make(chan error, 1)

	require.True(t, r.start(context.Background(), func(context.Context) error {
		return errors.New("read failed")
	}, func(err error) { failed <- err }))

	select {
	case err := <-failed:
		assert.EqualError(t, err, "read failed")
	case <-time.After(time.Second):
		t.Fatal("failure not reported")
	}
	assert.Eventually(t, func() bool { return !r.running() }, time.Second, 5*time.Millisecond)
	assert.NotPanics(t, r.stop)
}

package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RunsRequestedPasses(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "f.txt", "v1")

	engine := NewEngine(src, dst, nil, nil, nil)
	runner := NewRunner(engine, 10*time.Millisecond, 2, nil)

	require.NoError(t, runner.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestRunner_PicksUpChangesBetweenPasses(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "f.txt", "v1")

	engine := NewEngine(src, dst, nil, nil, nil)

	// first pass copies v1
	runner := NewRunner(engine, time.Millisecond, 1, nil)
	require.NoError(t, runner.Run(context.Background()))

	// mutate the source, run again
	writeFile(t, src, "f.txt", "v2")
	require.NoError(t, NewRunner(engine, time.Millisecond, 1, nil).Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestRunner_StopsOnFatalFailure(t *testing.T) {
	engine := NewEngine("/nonexistent/mirrorbox/src", t.TempDir(), nil, nil, nil)
	runner := NewRunner(engine, time.Millisecond, 3, nil)

	err := runner.Run(context.Background())
	require.ErrorIs(t, err, ErrMissingSourceRoot)
}

func TestRunner_HonorsCancellation(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "f.txt", "v1")

	ctx, cancel := context.WithCancel(context.Background())
	engine := NewEngine(src, dst, nil, nil, nil)
	runner := NewRunner(engine, time.Hour, 2, nil)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// let the first pass finish, then cancel the interval wait
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop on cancellation")
	}
}

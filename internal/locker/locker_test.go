package locker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesPerTask(t *testing.T) {
	l := NewMemoryLocker()
	taskID := uuid.New()

	release, err := l.Acquire(context.Background(), taskID)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrLocked)

	release()

	release2, err := l.Acquire(context.Background(), taskID)
	require.NoError(t, err)
	release2()
}

func TestMemoryLockerIsPerTaskNotGlobal(t *testing.T) {
	l := NewMemoryLocker()

	releaseA, err := l.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := l.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer releaseB()
}

func TestMemoryLockerReleaseIsIdempotentEnough(t *testing.T) {
	l := NewMemoryLocker()
	taskID := uuid.New()

	release, err := l.Acquire(context.Background(), taskID)
	require.NoError(t, err)
	release()
	release() // double release must not panic or poison the map

	_, err = l.Acquire(context.Background(), taskID)
	assert.NoError(t, err)
}

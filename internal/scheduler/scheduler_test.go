package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/snapshot"
)

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) (*snapshot.Snapshot, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("refresh without deadline")
	}
	return snapshot.New(nil, nil, time.Now())
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("every now and then", &countingRefresher{}, time.Second)
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	r := &countingRefresher{}
	s, err := New("@every 15m", r, time.Second)
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, r.calls)

	r.err = errors.New("db locked")
	assert.ErrorIs(t, s.RunOnce(context.Background()), r.err)
}

func TestNext(t *testing.T) {
	s, err := New("0 6 * * *", &countingRefresher{}, time.Second)
	require.NoError(t, err)

	from := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC), next)
}

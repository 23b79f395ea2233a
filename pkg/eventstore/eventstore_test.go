package eventstore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plaenen/eventstore/pkg/eventstore"
)

func TestCommitSnapshotAt(t *testing.T) {
	const interval = int64(100)

	cases := []struct {
		name     string
		current  int64
		numNew   int64
		expected int64
	}{
		{"below threshold", 0, 50, 0},
		{"exactly at threshold", 0, 100, 100},
		{"crosses one boundary with excess", 0, 150, 100},
		{"starts mid-window", 40, 55, 0},
		{"starts mid-window, reaches boundary", 40, 60, 60},
		{"starts mid-window, crosses two boundaries", 40, 260, 260},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, eventstore.CommitSnapshotAt(interval, tc.current, tc.numNew))
		})
	}
}

func TestErrorIsOptimisticLock(t *testing.T) {
	err := eventstore.Connection(errors.New("boom"))
	assert.False(t, errors.Is(err, eventstore.ErrOptimisticLock))

	lockErr := &eventstore.Error{Kind: eventstore.KindOptimisticLock, Err: errors.New("condition failed")}
	assert.True(t, errors.Is(lockErr, eventstore.ErrOptimisticLock))
}

package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(uptime uint64, procs, users int, err error) Source {
	return Source{
		Uptime: func(context.Context) (uint64, error) { return uptime, nil },
		Procs:  func(context.Context) (int, error) { return procs, nil },
		Users:  func(context.Context) (int, error) { return users, err },
	}
}

func TestCollect(t *testing.T) {
	c := NewCollector(5*time.Minute, WithSource(fixed(3600, 212, 2, nil)))
	data, err := c.Collect(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{3600, 212, 2}, data[0].Values)
}

func TestCollectPropagatesErrors(t *testing.T) {
	c := NewCollector(time.Minute, WithSource(fixed(1, 1, 0, errors.New("utmp unreadable"))))
	_, err := c.Collect(context.Background(), 5)
	assert.ErrorContains(t, err, "utmp unreadable")
}

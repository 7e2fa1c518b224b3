package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectComputesUsed(t *testing.T) {
	c := NewCollector(time.Minute, WithSource(func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 8000, Free: 3000, Buffers: 200, Cached: 1500}, nil
	}))

	formats, err := c.Formats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"free", "used", "buffers", "cache"}, formats[0].Schema.Names())
	assert.Equal(t, int64(60), formats[0].Schema[0].Heartbeat)

	data, err := c.Collect(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, []int64{3000, 5000, 200, 1500}, data[0].Values)
}

func TestCollectSourceFailure(t *testing.T) {
	c := NewCollector(time.Minute, WithSource(func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("no meminfo")
	}))
	_, err := c.Collect(context.Background(), 10)
	assert.Error(t, err)
}

package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//stubRenderer 按瓦片号生成内容并计数
type stubRenderer struct {
	mu    sync.Mutex
	calls map[maptile.Tile]int
	fail  maptile.Tile
	err   error
}

func (s *stubRenderer) Render(t maptile.Tile) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[maptile.Tile]int)
	}
	s.calls[t]++
	if s.err != nil && t == s.fail {
		return nil, s.err
	}
	return []byte(tileKey(t)), nil
}

func (s *stubRenderer) count(t maptile.Tile) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[t]
}

func (s *stubRenderer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func testConf(t *testing.T) {
	viper.Reset()
	setDefaults()
	viper.Set("task.progress", false)
	viper.Set("task.batch", 7)
	t.Cleanup(viper.Reset)
}

func TestNewTaskRange(t *testing.T) {
	testConf(t)
	c := openTestCache(t)

	task, err := NewTask(&stubRenderer{}, c, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1+4+16+64), task.Total)
	assert.NotEmpty(t, task.ID)

	_, err = NewTask(&stubRenderer{}, c, 0, 9)
	assert.Error(t, err)
	_, err = NewTask(&stubRenderer{}, c, 3, 2)
	assert.Error(t, err)
	_, err = NewTask(&stubRenderer{}, c, -1, 2)
	assert.Error(t, err)

	viper.Set("warm.limit", 10)
	_, err = NewTask(&stubRenderer{}, c, 0, 9)
	assert.NoError(t, err)
}

func TestTaskRun(t *testing.T) {
	testConf(t)
	c := openTestCache(t)
	r := &stubRenderer{}

	task, err := NewTask(r, c, 0, 4)
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, pyramidCount(0, 4), n)
	assert.Equal(t, pyramidCount(0, 4), task.Current)
	assert.Zero(t, task.Skipped)

	data, err := c.Get(5, 9, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("4/5/9"), data)
}

func TestTaskRunSkipsCachedTiles(t *testing.T) {
	testConf(t)
	c := openTestCache(t)
	require.NoError(t, c.Set(1, 1, 1, []byte("cached")))
	r := &stubRenderer{}

	task, err := NewTask(r, c, 1, 2)
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	assert.Zero(t, r.count(maptile.New(1, 1, 1)))
	assert.Equal(t, int64(1), task.Skipped)
	assert.Equal(t, int64(19), task.Current)

	data, err := c.Get(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), data)
}

func TestTaskRunRenderError(t *testing.T) {
	testConf(t)
	c := openTestCache(t)
	r := &stubRenderer{fail: maptile.New(0, 1, 1), err: errors.New("boom")}

	task, err := NewTask(r, c, 0, 1)
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	data, err := c.Get(0, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestTaskRunCanceled(t *testing.T) {
	testConf(t)
	c := openTestCache(t)
	r := &stubRenderer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task, err := NewTask(r, c, 0, 6)
	require.NoError(t, err)
	err = task.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, r.total(), int(pyramidCount(0, 6)))
}

func TestTaskCover(t *testing.T) {
	testConf(t)
	c := openTestCache(t)
	r := &stubRenderer{}

	task, err := NewTask(r, c, 0, 3)
	require.NoError(t, err)
	// north-west quarter of the world, away from tile seams
	task.Cover(orb.Bound{Min: orb.Point{-170, 10}, Max: orb.Point{-10, 80}})
	assert.Equal(t, int64(1+1+4+16), task.Total)

	require.NoError(t, task.Run(context.Background()))
	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, task.Total, n)
	assert.Zero(t, r.count(maptile.New(1, 0, 1)))
	assert.Equal(t, 1, r.count(maptile.New(0, 0, 1)))
}

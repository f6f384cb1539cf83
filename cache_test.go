package main

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *TileCache {
	c, err := OpenTileCache(filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	_, err = c.Init()
	require.NoError(t, err)
	return c
}

func TestTileCacheInit(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tiles.db")
	c, err := OpenTileCache(file)
	require.NoError(t, err)

	existed, err := c.Init()
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = c.Init()
	require.NoError(t, err)
	assert.True(t, existed)

	require.NoError(t, c.Set(1, 2, 3, []byte("a")))
	require.NoError(t, c.Close())

	c, err = OpenTileCache(file)
	require.NoError(t, err)
	defer c.Close()
	existed, err = c.Init()
	require.NoError(t, err)
	assert.True(t, existed)

	data, err := c.Get(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestTileCacheGetSet(t *testing.T) {
	c := openTestCache(t)

	data, err := c.Get(4, 2, 3)
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)

	require.NoError(t, c.Set(4, 2, 3, []byte{0x89, 'P', 'N', 'G'}))
	data, err = c.Get(4, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	data, err = c.Get(2, 4, 3)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestTileCacheFirstWriteWins(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Set(0, 0, 0, []byte("first")))
	require.NoError(t, c.Set(0, 0, 0, []byte("second")))

	data, err := c.Get(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTileCacheSetBatch(t *testing.T) {
	c := openTestCache(t)

	var tiles []Tile
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			tiles = append(tiles, Tile{T: maptile.New(x, y, 2), C: []byte(fmt.Sprintf("%d-%d", x, y))})
		}
	}
	require.NoError(t, c.SetBatch(tiles))
	require.NoError(t, c.SetBatch(tiles[:3]))
	require.NoError(t, c.SetBatch(nil))

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)

	data, err := c.Get(3, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("3-1"), data)
}

func TestTileCacheConcurrent(t *testing.T) {
	c := openTestCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x := uint32(i % 4)
			assert.NoError(t, c.Set(x, 0, 2, []byte{byte(x)}))
			_, err := c.Get(x, 0, 2)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestTileCacheClosed(t *testing.T) {
	c, err := OpenTileCache(filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Get(0, 0, 0)
	assert.Error(t, err)
	assert.Error(t, c.Set(0, 0, 0, []byte("x")))
}

func TestTileCacheInitLegacyDuplicates(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tiles.db")
	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)
	for _, stmt := range []string{
		"CREATE TABLE tiles (x INTEGER, y INTEGER, z INTEGER, image BLOB);",
		"CREATE INDEX x_index ON tiles (x);",
		"CREATE INDEX y_index ON tiles (y);",
		"CREATE INDEX z_index ON tiles (z);",
		"INSERT INTO tiles VALUES (0, 0, 0, 'first');",
		"INSERT INTO tiles VALUES (0, 0, 0, 'second');",
		"INSERT INTO tiles VALUES (1, 0, 1, 'other');",
		"INSERT INTO tiles VALUES (0, 0, 0, 'third');",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	c, err := OpenTileCache(file)
	require.NoError(t, err)
	defer c.Close()

	existed, err := c.Init()
	require.NoError(t, err)
	assert.True(t, existed)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	data, err := c.Get(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	require.NoError(t, c.Set(0, 0, 0, []byte("fourth")))
	n, err = c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[server]
addr = "127.0.0.1:2000"
read_timeout = "3s"

[warm]
max = 3

[log]
level = "info"

[[layers]]
name = "road"
files = ["Road/roads.geojson"]
color = "#e6e6fa"
minzoom = 6

[[layers]]
name = "river"
files = ["River/hyd1_4l.shp", "River/hyd2_4l.shp"]
color = "#00bfff"
minzoom = 2
`

func TestInitConf(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	level := logrus.GetLevel()
	t.Cleanup(func() { logrus.SetLevel(level) })

	file := filepath.Join(t.TempDir(), "conf.toml")
	require.NoError(t, os.WriteFile(file, []byte(testConfig), 0644))
	initConf(file)

	assert.Equal(t, "127.0.0.1:2000", viper.GetString("server.addr"))
	assert.Equal(t, 3*time.Second, viper.GetDuration("server.read_timeout"))
	assert.Equal(t, 15*time.Second, viper.GetDuration("server.write_timeout"))
	assert.Equal(t, 3, viper.GetInt("warm.max"))
	assert.Equal(t, 8, viper.GetInt("warm.limit"))
	assert.Equal(t, "tiles.db", viper.GetString("cache.file"))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())

	cfgs, err := layerConfigs()
	require.NoError(t, err)
	assert.Equal(t, []LayerConfig{
		{Name: "road", Files: []string{"Road/roads.geojson"}, Color: "#e6e6fa", MinZoom: 6},
		{Name: "river", Files: []string{"River/hyd1_4l.shp", "River/hyd2_4l.shp"}, Color: "#00bfff", MinZoom: 2},
	}, cfgs)
}

func TestLayerConfigsDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()

	cfgs, err := layerConfigs()
	require.NoError(t, err)
	assert.Equal(t, DefaultLayers, cfgs)
	assert.Equal(t, "localhost:1995", viper.GetString("server.addr"))
}

func TestRenderOne(t *testing.T) {
	dir := t.TempDir()
	m := &TileMap{Name: "test"}

	require.NoError(t, renderOne(m, "2/1/3", dir))
	data, err := os.ReadFile(filepath.Join(dir, "2", "1", "3.png"))
	require.NoError(t, err)
	decodeTile(t, data)

	assert.Error(t, renderOne(m, "2/4/0", dir))
	assert.Error(t, renderOne(m, "nonsense", dir))
}

package main

import (
	"fmt"
	"image/color"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
)

//LayerConfig 图层配置:数据文件,颜色,最小显示级别
type LayerConfig struct {
	Name    string
	Files   []string
	Color   string
	MinZoom int
}

//DefaultLayers 默认图层表,顺序即绘制顺序
var DefaultLayers = []LayerConfig{
	{Name: "city", Files: []string{"City/CN_city.shp"}, Color: "#ccffcc", MinZoom: 4},
	{Name: "country", Files: []string{"Country/CN-boundary-land.shp", "Country/CN-boundary-sea.shp"}, Color: "#ffffe1", MinZoom: 0},
	{Name: "province", Files: []string{"Province/province_region.shp"}, Color: "#ffccff", MinZoom: 2},
	{Name: "rail", Files: []string{"Train/rai_4m.shp"}, Color: "#ee7942", MinZoom: 6},
	{Name: "road", Files: []string{"Road/roa_4m.shp"}, Color: "#e6e6fa", MinZoom: 6},
	{Name: "river", Files: []string{"River/hyd1_4l.shp", "River/hyd2_4l.shp"}, Color: "#00bfff", MinZoom: 6},
}

//Shape 矢量要素,Geometry为orb.Polygon或orb.MultiLineString,加载后只读
type Shape struct {
	Geometry orb.Geometry
	Bound    orb.Bound
}

//Layer 已加载的图层
type Layer struct {
	Name    string
	MinZoom int
	Color   color.RGBA
	Shapes  []Shape
}

//TileMap 瓦片地图
type TileMap struct {
	Name   string
	Layers []*Layer
	Border color.Color
}

//LoadTileMap 按图层表加载全部矢量数据,任一文件失败即返回错误
func LoadTileMap(name, dir string, cfgs []LayerConfig) (*TileMap, error) {
	m := &TileMap{Name: name}
	for _, cfg := range cfgs {
		clr, err := parseColor(cfg.Color)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", cfg.Name, err)
		}
		if cfg.MinZoom < ZoomMin || cfg.MinZoom > ZoomMax {
			return nil, fmt.Errorf("layer %s: min zoom %d out of range [%d, %d]", cfg.Name, cfg.MinZoom, ZoomMin, ZoomMax)
		}
		layer := &Layer{Name: cfg.Name, MinZoom: cfg.MinZoom, Color: clr}
		for _, file := range cfg.Files {
			if !filepath.IsAbs(file) {
				file = filepath.Join(dir, file)
			}
			shapes, err := loadShapes(file)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w", cfg.Name, err)
			}
			layer.Shapes = append(layer.Shapes, shapes...)
		}
		log.Infof("layer %s loaded, %d shapes, zoom >= %d", layer.Name, len(layer.Shapes), layer.MinZoom)
		m.Layers = append(m.Layers, layer)
	}
	return m, nil
}

//Visible 返回该级别需要绘制的图层
func (m *TileMap) Visible(z maptile.Zoom) []*Layer {
	var layers []*Layer
	for _, l := range m.Layers {
		if maptile.Zoom(l.MinZoom) <= z {
			layers = append(layers, l)
		}
	}
	return layers
}

//Render 绘制瓦片
func (m *TileMap) Render(t maptile.Tile) ([]byte, error) {
	return renderTile(t, m.Visible(t.Z), m.Border)
}

//Bound 范围
func (m *TileMap) Bound() orb.Bound {
	var bound orb.Bound
	first := true
	for _, l := range m.Layers {
		for _, s := range l.Shapes {
			if first {
				bound, first = s.Bound, false
				continue
			}
			bound = bound.Union(s.Bound)
		}
	}
	return bound
}

//parseColor 解析#rrggbb
func parseColor(s string) (color.RGBA, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

package main

import (
	"image/color"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
)

//tileRect 瓦片本地像素范围
var tileRect = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{TileSize, TileSize}}

//tileRender 单个瓦片的绘制过程
type tileRender struct {
	tile   maptile.Tile
	zoom   float64
	origin orb.Point
	geo    orb.Bound
	canvas *Canvas
	shapes int
	edges  int
}

func newTileRender(t maptile.Tile) *tileRender {
	return &tileRender{
		tile:   t,
		zoom:   float64(t.Z),
		origin: tileOrigin(t),
		geo:    t.Bound(),
		canvas: NewCanvas(TileSize, TileSize),
	}
}

//RenderTile 按顺序绘制给定图层并编码为png
func RenderTile(t maptile.Tile, layers []*Layer) ([]byte, error) {
	return renderTile(t, layers, nil)
}

//renderTile border非空时最后画瓦片边框
func renderTile(t maptile.Tile, layers []*Layer, border color.Color) ([]byte, error) {
	start := time.Now()
	r := newTileRender(t)
	for _, l := range layers {
		r.drawLayer(l)
	}
	if border != nil {
		r.canvas.DrawBorder(border)
	}
	data, err := r.canvas.EncodePNG()
	elapsed := time.Since(start)
	renderDuration.Observe(elapsed.Seconds())
	log.Debugf("tile %s drawn, %d shapes, %d edges, %.3fs", tileKey(t), r.shapes, r.edges, elapsed.Seconds())
	return data, err
}

func (r *tileRender) drawLayer(l *Layer) {
	for i := range l.Shapes {
		if r.drawShape(&l.Shapes[i], l.Color) {
			r.shapes++
		}
	}
}

//drawShape 外包框与瓦片不重叠的要素整体跳过
func (r *tileRender) drawShape(s *Shape, clr color.Color) bool {
	if !RectsOverlap(r.geo, s.Bound) {
		return false
	}
	switch g := s.Geometry.(type) {
	case orb.Polygon:
		for _, ring := range g {
			r.drawPoints(ring, true, clr)
		}
	case orb.MultiLineString:
		for _, part := range g {
			r.drawPoints(part, false, clr)
		}
	}
	return true
}

//toPixel 经纬度转瓦片本地像素
func (r *tileRender) toPixel(p orb.Point) orb.Point {
	w := Project(p, r.zoom)
	return orb.Point{w[0] - r.origin[0], w[1] - r.origin[1]}
}

func (r *tileRender) drawPoints(points []orb.Point, closed bool, clr color.Color) {
	if len(points) < 2 {
		return
	}
	pixels := make([]orb.Point, len(points))
	for i, p := range points {
		pixels[i] = r.toPixel(p)
	}
	if closed {
		r.drawEdge(pixels[len(pixels)-1], pixels[0], clr)
	}
	for i := 1; i < len(pixels); i++ {
		r.drawEdge(pixels[i-1], pixels[i], clr)
	}
}

//drawEdge 边与瓦片相交或接触时整条画出,不做子线段裁剪
func (r *tileRender) drawEdge(p1, p2 orb.Point, clr color.Color) {
	if !RectCrossesSegment(tileRect, Segment{p1, p2}) {
		return
	}
	r.edges++
	r.canvas.DrawLine(p1, p2, clr)
}

package main

import (
	"bytes"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
)

//guardBand 画线前线段裁剪到画布外扩的范围,避免远端点溢出光栅器
const guardBand = TileSize

//Canvas 瓦片画布
type Canvas struct {
	dc     *gg.Context
	width  int
	height int
}

//NewCanvas 创建黑色背景画布
func NewCanvas(width, height int) *Canvas {
	dc := gg.NewContext(width, height)
	dc.SetRGB255(0, 0, 0)
	dc.Clear()
	return &Canvas{dc: dc, width: width, height: height}
}

//SetPixel 画点,超出画布的点忽略
func (c *Canvas) SetPixel(x, y int, clr color.Color) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	c.dc.SetColor(clr)
	c.dc.SetPixel(x, y)
}

//Pixel 读取像素
func (c *Canvas) Pixel(x, y int) color.Color {
	return c.dc.Image().At(x, y)
}

//DrawLine 画单像素实色线(Bresenham),画布外的像素丢弃
func (c *Canvas) DrawLine(p1, p2 orb.Point, clr color.Color) {
	min := orb.Point{-guardBand, -guardBand}
	max := orb.Point{float64(c.width + guardBand), float64(c.height + guardBand)}
	p1, p2, ok := trimLine(p1, p2, orb.Bound{Min: min, Max: max})
	if !ok {
		return
	}

	x0, y0 := int(math.Floor(p1[0])), int(math.Floor(p1[1]))
	x1, y1 := int(math.Floor(p2[0])), int(math.Floor(p2[1]))
	dx, sx := x1-x0, 1
	if dx < 0 {
		dx, sx = -dx, -1
	}
	dy, sy := y0-y1, 1
	if dy > 0 {
		dy = -dy
	}
	if y1 < y0 {
		sy = -1
	}
	e := dx + dy
	for {
		c.SetPixel(x0, y0, clr)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

//DrawPolygon 画闭合折线
func (c *Canvas) DrawPolygon(points []orb.Point, clr color.Color) {
	if len(points) < 2 {
		return
	}
	c.DrawLine(points[len(points)-1], points[0], clr)
	for i := 1; i < len(points); i++ {
		c.DrawLine(points[i-1], points[i], clr)
	}
}

//DrawBorder 画瓦片边框
func (c *Canvas) DrawBorder(clr color.Color) {
	w, h := float64(c.width-1), float64(c.height-1)
	c.DrawPolygon([]orb.Point{{0, 0}, {w, 0}, {w, h}, {0, h}}, clr)
}

//EncodePNG 编码为png
func (c *Canvas) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// trimLine clips p1-p2 to b (Liang-Barsky). ok is false when nothing is left.
func trimLine(p1, p2 orb.Point, b orb.Bound) (orb.Point, orb.Point, bool) {
	dx, dy := p2[0]-p1[0], p2[1]-p1[1]
	t0, t1 := 0.0, 1.0
	for _, e := range [4][2]float64{
		{-dx, p1[0] - b.Min[0]},
		{dx, b.Max[0] - p1[0]},
		{-dy, p1[1] - b.Min[1]},
		{dy, b.Max[1] - p1[1]},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return p1, p2, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return p1, p2, false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return p1, p2, false
			}
			if r < t1 {
				t1 = r
			}
		}
	}
	a, z := p1, p2
	if t0 > 0 {
		a = orb.Point{p1[0] + t0*dx, p1[1] + t0*dy}
	}
	if t1 < 1 {
		z = orb.Point{p1[0] + t1*dx, p1[1] + t1*dy}
	}
	return a, z, true
}

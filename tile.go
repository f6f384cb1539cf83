package main

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

//TileSize 默认瓦片大小
const TileSize = 256

//ZoomMin 最小级别
const ZoomMin = 0

//ZoomMax 最大级别
const ZoomMax = 20

// Constants representing response content types
const (
	HTML = "text/html"
	PNG  = "image/png"
)

//Tile 自定义瓦片存储
type Tile struct {
	T maptile.Tile
	C []byte
}

func (tile Tile) String() string {
	return tileKey(tile.T)
}

func tileKey(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

//validTile 级别不超过ZoomMax且x,y在[0,2^z)内
func validTile(t maptile.Tile) bool {
	return t.Z <= ZoomMax && t.Valid()
}

//tileOrigin 瓦片左上角的世界像素坐标
func tileOrigin(t maptile.Tile) orb.Point {
	return orb.Point{float64(TileSize) * float64(t.X), float64(TileSize) * float64(t.Y)}
}

//zoomCount 某一级别的瓦片数
func zoomCount(z int) int64 {
	n := int64(1) << uint(z)
	return n * n
}

//pyramidCount [min,max]级别的瓦片总数
func pyramidCount(min, max int) int64 {
	var total int64
	for z := min; z <= max; z++ {
		total += zoomCount(z)
	}
	return total
}

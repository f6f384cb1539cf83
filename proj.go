package main

import (
	"math"

	"github.com/paulmach/orb"
)

//worldScale 0级时每弧度对应的像素数
const worldScale = TileSize / (2 * math.Pi)

//LongitudeToX 经度转世界像素x
func LongitudeToX(lon, zoom float64) float64 {
	return worldScale * (lon*math.Pi/180 + math.Pi) * math.Exp2(zoom)
}

//LatitudeToY 纬度转世界像素y,纬度越高y越小
func LatitudeToY(lat, zoom float64) float64 {
	return worldScale * (math.Pi - math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))) * math.Exp2(zoom)
}

//Project 经纬度点转世界像素点
func Project(p orb.Point, zoom float64) orb.Point {
	return orb.Point{LongitudeToX(p.Lon(), zoom), LatitudeToY(p.Lat(), zoom)}
}

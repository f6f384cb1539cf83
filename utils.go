package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
)

//loadShapes 按扩展名读取矢量文件
func loadShapes(path string) ([]Shape, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return loadShapefile(path)
	case ".geojson", ".json":
		return loadGeoJSON(path)
	default:
		return nil, fmt.Errorf("unsupported vector file %s", path)
	}
}

//loadShapefile 读取shapefile中的面和线
func loadShapefile(path string) ([]Shape, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	reader, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var shapes []Shape
	skipped := 0
	for reader.Next() {
		_, s := reader.Shape()
		switch s := s.(type) {
		case *shp.Polygon:
			shapes = append(shapes, Shape{
				Geometry: orb.Polygon(shpRings(s.Parts, s.Points)),
				Bound:    shpBound(s.Box),
			})
		case *shp.PolyLine:
			var parts orb.MultiLineString
			for _, r := range shpRings(s.Parts, s.Points) {
				parts = append(parts, orb.LineString(r))
			}
			shapes = append(shapes, Shape{Geometry: parts, Bound: shpBound(s.Box)})
		default:
			skipped++
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if skipped > 0 {
		log.Warnf("%s: %d shapes are neither polygon nor polyline, skipped ~", path, skipped)
	}
	return shapes, nil
}

//shpRings 按Parts起始下标切分点序列
func shpRings(parts []int32, points []shp.Point) []orb.Ring {
	rings := make([]orb.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

func shpBound(b shp.Box) orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

//loadGeoJSON 读取geojson要素集,面与多面转为面,线与多线转为折线
func loadGeoJSON(path string) ([]Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}

	var shapes []Shape
	skipped := 0
	for _, f := range fc.Features {
		var g orb.Geometry
		switch geom := f.Geometry.(type) {
		case orb.Polygon:
			g = geom
		case orb.MultiPolygon:
			var rings orb.Polygon
			for _, p := range geom {
				rings = append(rings, p...)
			}
			g = rings
		case orb.LineString:
			g = orb.MultiLineString{geom}
		case orb.MultiLineString:
			g = geom
		default:
			skipped++
			continue
		}
		shapes = append(shapes, Shape{Geometry: g, Bound: f.Geometry.Bound()})
	}
	if skipped > 0 {
		log.Warnf("%s: %d features are neither polygon nor line, skipped ~", path, skipped)
	}
	return shapes, nil
}

//saveToFiles 按z/x/y.png保存瓦片
func saveToFiles(tile Tile, rootdir string) (string, error) {
	dir := filepath.Join(rootdir, fmt.Sprintf(`%d`, tile.T.Z), fmt.Sprintf(`%d`, tile.T.X))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}
	fileName := filepath.Join(dir, fmt.Sprintf(`%d.png`, tile.T.Y))
	if err := os.WriteFile(fileName, tile.C, 0644); err != nil {
		return "", err
	}
	return fileName, nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=NORMAL")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return err
	}
	return nil
}

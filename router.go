package main

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	indexBody    = "<h1>GIS Server</h1>"
	notFoundBody = "<h1>404 Not Found</h1>"
	errorBody    = "<h1>500 Internal Server Error</h1>"
)

var tilePath = regexp.MustCompile(`^/maps/(\d+)/(\d+)/(\d+)\.png$`)

//Response 路由结果
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

//TileRenderer 瓦片绘制接口
type TileRenderer interface {
	Render(t maptile.Tile) ([]byte, error)
}

//Router 请求路由,瓦片先查缓存,未命中时绘制并写回缓存
type Router struct {
	tiles TileRenderer
	cache *TileCache
	group singleflight.Group
}

//NewRouter 创建路由
func NewRouter(tiles TileRenderer, cache *TileCache) *Router {
	return &Router{tiles: tiles, cache: cache}
}

//parseTilePath 解析/maps/{z}/{x}/{y}.png
func parseTilePath(path string) (maptile.Tile, bool) {
	m := tilePath.FindStringSubmatch(path)
	if m == nil {
		return maptile.Tile{}, false
	}
	var v [3]uint32
	for i := range v {
		n, err := strconv.ParseUint(m[i+1], 10, 32)
		if err != nil {
			return maptile.Tile{}, false
		}
		v[i] = uint32(n)
	}
	t := maptile.New(v[1], v[2], maptile.Zoom(v[0]))
	return t, validTile(t)
}

//Route 按路径返回响应
func (r *Router) Route(path string) Response {
	if path == "/" {
		requestsTotal.WithLabelValues("index").Inc()
		return Response{http.StatusOK, HTML, []byte(indexBody)}
	}

	t, ok := parseTilePath(path)
	if !ok {
		requestsTotal.WithLabelValues("notfound").Inc()
		return Response{http.StatusNotFound, HTML, []byte(notFoundBody)}
	}

	requestsTotal.WithLabelValues("tile").Inc()
	data, err := r.Tile(t)
	if err != nil {
		log.Errorf("render tile %s error ~ %s", tileKey(t), err)
		return Response{http.StatusInternalServerError, HTML, []byte(errorBody)}
	}
	return Response{http.StatusOK, PNG, data}
}

//Tile 获取瓦片,同一瓦片的并发未命中只绘制一次
func (r *Router) Tile(t maptile.Tile) ([]byte, error) {
	logger := log.WithFields(log.Fields{"z": t.Z, "x": t.X, "y": t.Y})

	if data, ok := r.cached(t, logger); ok {
		cacheHits.Inc()
		return data, nil
	}
	cacheMisses.Inc()

	v, err, shared := r.group.Do(tileKey(t), func() (interface{}, error) {
		if data, ok := r.cached(t, logger); ok {
			return data, nil
		}
		data, err := r.tiles.Render(t)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Set(t.X, t.Y, uint32(t.Z), data); err != nil {
			cacheErrors.WithLabelValues("set").Inc()
			logger.Warnf("cache set error ~ %s", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)
	logger.Debugf("tile served from render, %d bytes, shared: %v", len(data), shared)
	return data, nil
}

//cached 读缓存,出错时按未命中处理
func (r *Router) cached(t maptile.Tile, logger *log.Entry) ([]byte, bool) {
	data, err := r.cache.Get(t.X, t.Y, uint32(t.Z))
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		logger.Warnf("cache get error ~ %s", err)
		return nil, false
	}
	return data, len(data) > 0
}

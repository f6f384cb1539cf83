package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"
)

//Task 缓存预热任务,绘制[Min,Max]级别的全部瓦片写入缓存
type Task struct {
	ID           string
	Min          int
	Max          int
	Total        int64
	Current      int64
	Skipped      int64
	Bar          *pb.ProgressBar
	tiles        TileRenderer
	cache        *TileCache
	workerCount  int
	savePipeSize int
	batchSize    int
	progress     bool
	wg           sync.WaitGroup
	workers      chan maptile.Tile
	savingpipe   chan Tile
	extent       *orb.Bound
}

//NewTask 创建预热任务,级别超出warm.limit时返回错误
func NewTask(tiles TileRenderer, cache *TileCache, min, max int) (*Task, error) {
	limit := viper.GetInt("warm.limit")
	if limit <= 0 || limit > ZoomMax {
		limit = ZoomMax
	}
	if min < ZoomMin || max < min {
		return nil, fmt.Errorf("invalid warm zoom range [%d, %d]", min, max)
	}
	if max > limit {
		return nil, fmt.Errorf("warm max zoom %d exceeds limit %d", max, limit)
	}

	id, _ := shortid.Generate()
	task := Task{
		ID:    id,
		Min:   min,
		Max:   max,
		Total: pyramidCount(min, max),
		tiles: tiles,
		cache: cache,
	}

	task.workerCount = viper.GetInt("task.workers")
	if task.workerCount <= 0 {
		task.workerCount = 1
	}
	task.savePipeSize = viper.GetInt("task.savepipe")
	task.batchSize = viper.GetInt("task.batch")
	if task.batchSize <= 0 {
		task.batchSize = 1
	}
	task.progress = viper.GetBool("task.progress")
	task.workers = make(chan maptile.Tile, task.workerCount)
	task.savingpipe = make(chan Tile, task.savePipeSize)
	return &task, nil
}

//Cover 只预热与b相交的瓦片
func (task *Task) Cover(b orb.Bound) {
	task.extent = &b
	task.Total = 0
	for z := task.Min; z <= task.Max; z++ {
		task.Total += int64(len(task.coverSet(z)))
	}
}

func (task *Task) coverSet(z int) maptile.Set {
	set := tilecover.Bound(*task.extent, maptile.Zoom(z))
	for t := range set {
		if !t.Valid() {
			delete(set, t)
		}
	}
	return set
}

//zoomTiles 按层级生成待预热瓦片,ctx取消后停止
func (task *Task) zoomTiles(ctx context.Context, z int) (<-chan maptile.Tile, int64) {
	tilelist := make(chan maptile.Tile, task.workerCount)
	send := func(t maptile.Tile) bool {
		select {
		case tilelist <- t:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if task.extent != nil {
		set := task.coverSet(z)
		go func() {
			defer close(tilelist)
			for t := range set {
				if !send(t) {
					return
				}
			}
		}()
		return tilelist, int64(len(set))
	}

	go func() {
		defer close(tilelist)
		n := uint32(1) << uint(z)
		for x := uint32(0); x < n; x++ {
			for y := uint32(0); y < n; y++ {
				if !send(maptile.New(x, y, maptile.Zoom(z))) {
					return
				}
			}
		}
	}()
	return tilelist, zoomCount(z)
}

func (task *Task) newBar(total int64, prefix string) *pb.ProgressBar {
	bar := pb.New64(total).Prefix(prefix)
	bar.NotPrint = !task.progress
	return bar
}

func (task *Task) finishBar(bar *pb.ProgressBar, msg string) {
	if task.progress {
		bar.FinishPrint(msg)
		return
	}
	bar.Finish()
	log.Info(msg)
}

//savePipe 保存瓦片管道,按batchSize分批写入缓存
func (task *Task) savePipe() {
	batch := make([]Tile, 0, task.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := task.cache.SetBatch(batch); err != nil {
			cacheErrors.WithLabelValues("set").Inc()
			log.Errorf("save %d tiles to cache error ~ %s", len(batch), err)
		}
		batch = batch[:0]
	}
	for tile := range task.savingpipe {
		batch = append(batch, tile)
		if len(batch) >= task.batchSize {
			flush()
		}
	}
	flush()
}

//tileRender 瓦片绘制器,已缓存的瓦片跳过
func (task *Task) tileRender(t maptile.Tile) {
	defer task.wg.Done()
	defer func() {
		<-task.workers
	}()

	data, err := task.cache.Get(t.X, t.Y, uint32(t.Z))
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		log.Warnf("read %v tile from cache error ~ %s", t, err)
	} else if len(data) > 0 {
		atomic.AddInt64(&task.Skipped, 1)
		return
	}

	data, err = task.tiles.Render(t)
	if err != nil {
		log.Errorf("render %v tile error ~ %s", t, err)
		return
	}
	atomic.AddInt64(&task.Current, 1)
	warmedTiles.Inc()
	task.savingpipe <- Tile{T: t, C: data}
}

//warmZoom 预热指定层级
func (task *Task) warmZoom(ctx context.Context, z int) error {
	tilelist, count := task.zoomTiles(ctx, z)
	bar := task.newBar(count, fmt.Sprintf("Zoom %d : ", z))
	bar.Start()

loop:
	for tile := range tilelist {
		select {
		case task.workers <- tile:
			bar.Increment()
			task.Bar.Increment()
			task.wg.Add(1)
			go task.tileRender(tile)
		case <-ctx.Done():
			break loop
		}
	}
	task.wg.Wait()
	if err := ctx.Err(); err != nil {
		task.finishBar(bar, fmt.Sprintf("task %s zoom %d canceled ~", task.ID, z))
		return err
	}
	task.finishBar(bar, fmt.Sprintf("task %s zoom %d finished ~", task.ID, z))
	return nil
}

//Run 执行预热,ctx取消时等待已派发的瓦片完成后返回,只能执行一次
func (task *Task) Run(ctx context.Context) error {
	start := time.Now()
	log.Infof("task %s warming zoom %d-%d, %d tiles", task.ID, task.Min, task.Max, task.Total)
	task.Bar = task.newBar(task.Total, "Task : ")
	task.Bar.Start()

	saved := make(chan struct{})
	go func() {
		task.savePipe()
		close(saved)
	}()

	var err error
	for z := task.Min; z <= task.Max && err == nil; z++ {
		err = task.warmZoom(ctx, z)
	}
	task.wg.Wait()
	close(task.savingpipe)
	<-saved

	if err != nil {
		task.finishBar(task.Bar, fmt.Sprintf("task %s canceled ~", task.ID))
		return err
	}
	task.finishBar(task.Bar, fmt.Sprintf("task %s finished, %d rendered, %d skipped, %.3fs ~",
		task.ID, atomic.LoadInt64(&task.Current), atomic.LoadInt64(&task.Skipped), time.Since(start).Seconds()))
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// flag
var (
	hf bool
	bf bool
	cf string
	rf string
	of string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&rf, "render", "", "render one `z/x/y` tile to the output directory and exit")
	flag.StringVar(&of, "o", "output", "output `directory` for -render")
	flag.BoolVar(&bf, "border", false, "draw tile borders")
	flag.Usage = usage
	//InitLog 初始化日志
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	log.SetLevel(log.DebugLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `gisserver version: gisserver/v0.1.0
Usage: gisserver [-h] [-c filename] [-border] [-render z/x/y [-o directory]]
`)
	flag.PrintDefaults()
}

//setDefaults 默认配置
func setDefaults() {
	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "GIS Server")
	viper.SetDefault("server.addr", "localhost:1995")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.shutdown_timeout", 15*time.Second)
	viper.SetDefault("server.max_conns", 0)
	viper.SetDefault("cache.file", "tiles.db")
	viper.SetDefault("data.dir", "shapefile")
	viper.SetDefault("warm.enabled", true)
	viper.SetDefault("warm.min", 0)
	viper.SetDefault("warm.max", 5)
	viper.SetDefault("warm.limit", 8)
	viper.SetDefault("warm.background", false)
	viper.SetDefault("warm.extent", false)
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.savepipe", 64)
	viper.SetDefault("task.batch", 256)
	viper.SetDefault("task.progress", true)
	viper.SetDefault("metrics.addr", "")
	viper.SetDefault("log.level", "debug")
}

// initConf 初始化配置
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	setDefaults()

	level, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.Warnf("invalid log level %q, use debug ~", viper.GetString("log.level"))
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

//layerConfigs 配置中的图层表,未配置时使用默认图层
func layerConfigs() ([]LayerConfig, error) {
	if !viper.IsSet("layers") {
		return DefaultLayers, nil
	}
	var cfgs []LayerConfig
	if err := viper.UnmarshalKey("layers", &cfgs); err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return DefaultLayers, nil
	}
	return cfgs, nil
}

//renderOne 绘制单个瓦片保存到文件
func renderOne(m *TileMap, zxy, dir string) error {
	t, ok := parseTilePath("/maps/" + zxy + ".png")
	if !ok {
		return fmt.Errorf("invalid tile %q, want z/x/y", zxy)
	}
	data, err := m.Render(t)
	if err != nil {
		return err
	}
	file, err := saveToFiles(Tile{T: t, C: data}, dir)
	if err != nil {
		return err
	}
	log.Infof("tile %s saved to %s", tileKey(t), file)
	return nil
}

//serveMetrics 独立端口提供/metrics
func serveMetrics(addr string) {
	log.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, metricsHandler()); err != nil {
		log.Errorf("metrics server error ~ %s", err)
	}
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	initConf(cf)

	cfgs, err := layerConfigs()
	if err != nil {
		log.Fatalf("read layers config error ~ %s", err)
	}
	start := time.Now()
	tm, err := LoadTileMap(viper.GetString("app.title"), viper.GetString("data.dir"), cfgs)
	if err != nil {
		log.Fatalf("load layers error ~ %s", err)
	}
	log.Infof("%d layers loaded, bound %v, %.3fs", len(tm.Layers), tm.Bound(), time.Since(start).Seconds())
	if bf {
		tm.Border = color.RGBA{R: 255, A: 255}
	}

	if rf != "" {
		if err := renderOne(tm, rf, of); err != nil {
			log.Fatalf("render tile %s error ~ %s", rf, err)
		}
		return
	}

	cache, err := OpenTileCache(viper.GetString("cache.file"))
	if err != nil {
		log.Fatalf("open tile cache error ~ %s", err)
	}
	existed, err := cache.Init()
	if err != nil {
		log.Fatalf("init tile cache error ~ %s", err)
	}
	log.Infof("tile cache %s ready, existed: %v", cache.File, existed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmed := make(chan struct{})
	if !existed && viper.GetBool("warm.enabled") {
		task, err := NewTask(tm, cache, viper.GetInt("warm.min"), viper.GetInt("warm.max"))
		if err != nil {
			log.Fatalf("create warm task error ~ %s", err)
		}
		if viper.GetBool("warm.extent") {
			task.Cover(tm.Bound())
		}
		run := func() {
			defer close(warmed)
			if err := task.Run(ctx); err != nil {
				log.Warnf("warm task %s stopped ~ %s", task.ID, err)
			}
		}
		if viper.GetBool("warm.background") {
			go run()
		} else {
			run()
		}
	} else {
		close(warmed)
	}
	if ctx.Err() != nil {
		cache.Close()
		return
	}

	if addr := viper.GetString("metrics.addr"); addr != "" {
		go serveMetrics(addr)
	}

	srv := &Server{
		Addr:         viper.GetString("server.addr"),
		Router:       NewRouter(tm, cache),
		ReadTimeout:  viper.GetDuration("server.read_timeout"),
		WriteTimeout: viper.GetDuration("server.write_timeout"),
		MaxConns:     viper.GetInt("server.max_conns"),
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("listen on %s error ~ %s", srv.Addr, err)
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrServerClosed) {
			log.Errorf("gis server error ~ %s", err)
		}
	case <-ctx.Done():
		log.Info("shutting down ~")
	}

	sctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("server.shutdown_timeout"))
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warnf("shutdown error ~ %s", err)
	}
	stop()
	<-warmed
	if err := cache.Close(); err != nil {
		log.Warnf("close tile cache error ~ %s", err)
	}
	log.Info("bye ~")
}

package main

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

//TileCache sqlite瓦片缓存,所有操作经同一连接串行执行
type TileCache struct {
	File string
	db   *sql.DB
}

//OpenTileCache 打开缓存文件
func OpenTileCache(file string) (*TileCache, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := optimizeConnection(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open cache %s: %w", file, err)
	}
	return &TileCache{File: file, db: db}, nil
}

//Close 关闭缓存
func (c *TileCache) Close() error {
	return c.db.Close()
}

//Init 建表建索引,返回调用前tiles表是否已存在
func (c *TileCache) Init() (bool, error) {
	var name string
	err := c.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='tiles';").Scan(&name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	existed := name == "tiles"

	if existed {
		if err := c.dedupe(); err != nil {
			return existed, fmt.Errorf("init cache %s: %w", c.File, err)
		}
	}

	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS tiles (x INTEGER, y INTEGER, z INTEGER, image BLOB);",
		"CREATE INDEX IF NOT EXISTS x_index ON tiles (x);",
		"CREATE INDEX IF NOT EXISTS y_index ON tiles (y);",
		"CREATE INDEX IF NOT EXISTS z_index ON tiles (z);",
		"CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (x, y, z);",
	} {
		if _, err := c.db.Exec(stmt); err != nil {
			return existed, fmt.Errorf("init cache %s: %w", c.File, err)
		}
	}
	return existed, nil
}

//dedupe 唯一索引建立前删除重复瓦片,每个(x,y,z)保留最早写入的一行
func (c *TileCache) dedupe() error {
	var n int
	err := c.db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='index' AND name='tile_index';").Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	res, err := c.db.Exec("DELETE FROM tiles WHERE rowid NOT IN (SELECT min(rowid) FROM tiles GROUP BY x, y, z);")
	if err != nil {
		return err
	}
	if removed, _ := res.RowsAffected(); removed > 0 {
		log.Warnf("removed %d duplicate tiles from %s ~", removed, c.File)
	}
	return nil
}

//Get 查询瓦片,未命中返回空切片
func (c *TileCache) Get(x, y, z uint32) ([]byte, error) {
	var image []byte
	err := c.db.QueryRow("SELECT image FROM tiles WHERE x=? AND y=? AND z=? LIMIT 1;", x, y, z).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []byte{}, nil
		}
		return nil, err
	}
	if image == nil {
		image = []byte{}
	}
	return image, nil
}

//Set 写入瓦片,同一(x,y,z)只保留第一次写入
func (c *TileCache) Set(x, y, z uint32, image []byte) error {
	_, err := c.db.Exec("INSERT OR IGNORE INTO tiles (x, y, z, image) VALUES (?, ?, ?, ?);", x, y, z, image)
	return err
}

//SetBatch 在一个事务中批量写入
func (c *TileCache) SetBatch(tiles []Tile) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO tiles (x, y, z, image) VALUES (?, ?, ?, ?);")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tile := range tiles {
		if _, err := stmt.Exec(tile.T.X, tile.T.Y, uint32(tile.T.Z), tile.C); err != nil {
			return err
		}
	}
	return tx.Commit()
}

//Count 已缓存瓦片数
func (c *TileCache) Count() (int64, error) {
	var n int64
	err := c.db.QueryRow("SELECT count(*) FROM tiles;").Scan(&n)
	return n, err
}

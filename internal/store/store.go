package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// Config holds the MySQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Gateway is a thin wrapper over a single MySQL connection. Each periodic
// task owns its own Gateway; the REST layer holds another. The connection
// is opened lazily, and dropped on the first failed statement so the next
// cycle reconnects from scratch.
type Gateway struct {
	cfg Config
	db  *sql.DB
	log *zap.Logger
	mu  sync.Mutex
}

// New creates a Gateway. No connection is attempted until Ensure.
func New(cfg Config, log *zap.Logger) *Gateway {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	return &Gateway{cfg: cfg, log: log}
}

// Ensure opens and pings the connection if it is not already open.
func (g *Gateway) Ensure(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db != nil {
		if err := g.db.PingContext(ctx); err == nil {
			return nil
		}
		g.db.Close()
		g.db = nil
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		g.cfg.User,
		g.cfg.Password,
		g.cfg.Host,
		g.cfg.Port,
		g.cfg.Database,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping mysql: %w", err)
	}

	g.db = db
	return nil
}

// Drop closes the connection so the next Ensure reconnects.
func (g *Gateway) Drop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db != nil {
		g.db.Close()
		g.db = nil
	}
}

// Healthy reports whether the connection is open and answers a ping.
func (g *Gateway) Healthy(ctx context.Context) bool {
	g.mu.Lock()
	db := g.db
	g.mu.Unlock()
	if db == nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

// DB exposes the underlying handle for the management API layer.
// Nil until Ensure has succeeded.
func (g *Gateway) DB() *sql.DB {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.db
}

// Close releases the connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db != nil {
		err := g.db.Close()
		g.db = nil
		return err
	}
	return nil
}

func (g *Gateway) handle() (*sql.DB, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db == nil {
		return nil, fmt.Errorf("store: not connected")
	}
	return g.db, nil
}

// SetDB injects an existing handle. Test hook for sqlmock.
func (g *Gateway) SetDB(db *sql.DB) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.db = db
}

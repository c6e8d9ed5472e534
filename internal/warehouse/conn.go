package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/liao/claim-assistant/internal/config"
)

// DSN 返回连接串。配置了 dsn 时原样使用，否则由账号字段拼出。
func DSN(cfg config.WarehouseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	host := cfg.Account
	if cfg.Port > 0 {
		host = net.JoinHostPort(cfg.Account, strconv.Itoa(cfg.Port))
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	if cfg.Warehouse != "" {
		q.Set("application_name", cfg.Warehouse)
	}
	if cfg.Schema != "" {
		q.Set("search_path", cfg.Schema)
	}
	if cfg.PrivateKeyPath != "" {
		q.Set("sslmode", "require")
		q.Set("sslkey", cfg.PrivateKeyPath)
		q.Set("sslcert", cfg.CertPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TableName 返回带引号的 schema.table
func TableName(cfg config.WarehouseConfig) string {
	if cfg.Schema == "" {
		return pgx.Identifier{cfg.Table}.Sanitize()
	}
	return pgx.Identifier{cfg.Schema, cfg.Table}.Sanitize()
}

// Connector 进程内共享的连接池，首次使用时建立，之后不再重建
type Connector struct {
	cfg             config.WarehouseConfig
	createExtension bool

	once sync.Once
	pool *pgxpool.Pool
	err  error
}

type ConnectorOption func(*Connector)

// WithCreateExtension 建池前先用一条普通连接创建 vector 扩展。
// 每条池连接都要注册 vector 类型，扩展不存在时注册会失败。
func WithCreateExtension() ConnectorOption {
	return func(c *Connector) { c.createExtension = true }
}

func NewConnector(cfg config.WarehouseConfig, opts ...ConnectorOption) *Connector {
	c := &Connector{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pool 返回连接池；建立失败时返回 *config.Error，之后每次调用返回同一个错误
func (c *Connector) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	c.once.Do(func() {
		c.pool, c.err = c.open(ctx)
	})
	return c.pool, c.err
}

// bootstrapSQL 建池前在普通连接上执行的语句
func (c *Connector) bootstrapSQL() []string {
	if !c.createExtension {
		return nil
	}
	var stmts []string
	if c.cfg.Role != "" {
		stmts = append(stmts, setRoleSQL(c.cfg.Role))
	}
	return append(stmts, "CREATE EXTENSION IF NOT EXISTS vector")
}

func setRoleSQL(role string) string {
	return "SET ROLE " + pgx.Identifier{role}.Sanitize()
}

func (c *Connector) poolConfig() (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(DSN(c.cfg))
	if err != nil {
		return nil, &config.Error{Field: "warehouse", Reason: "parse dsn", Err: err}
	}

	role := c.cfg.Role
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			return fmt.Errorf("register pgvector types: %w", err)
		}
		if role != "" {
			if _, err := conn.Exec(ctx, setRoleSQL(role)); err != nil {
				return fmt.Errorf("set role %s: %w", role, err)
			}
		}
		return nil
	}
	return pcfg, nil
}

func (c *Connector) bootstrap(ctx context.Context, pcfg *pgxpool.Config) error {
	stmts := c.bootstrapSQL()
	if len(stmts) == 0 {
		return nil
	}
	conn, err := pgx.ConnectConfig(ctx, pcfg.ConnConfig.Copy())
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func (c *Connector) open(ctx context.Context) (*pgxpool.Pool, error) {
	pcfg, err := c.poolConfig()
	if err != nil {
		return nil, err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := c.bootstrap(ctx, pcfg); err != nil {
		return nil, &config.Error{Field: "warehouse", Reason: "bootstrap", Err: err}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, &config.Error{Field: "warehouse", Reason: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &config.Error{Field: "warehouse", Reason: "ping", Err: err}
	}
	slog.Info("warehouse connected", "host", pcfg.ConnConfig.Host, "database", pcfg.ConnConfig.Database, "role", c.cfg.Role)
	return pool, nil
}

func (c *Connector) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

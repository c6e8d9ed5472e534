package warehouse

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liao/claim-assistant/internal/config"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.WarehouseConfig
		check func(t *testing.T, u *url.URL)
	}{
		{
			name: "verbatim",
			cfg:  config.WarehouseConfig{DSN: "postgres://a@b/c", Account: "ignored"},
			check: func(t *testing.T, u *url.URL) {
				assert.Equal(t, "b", u.Host)
			},
		},
		{
			name: "password",
			cfg: config.WarehouseConfig{
				Account: "db.example.com", Port: 5433, User: "analyst", Password: "p@ss",
				Database: "insurance", Schema: "claims", Warehouse: "compute_wh",
			},
			check: func(t *testing.T, u *url.URL) {
				assert.Equal(t, "db.example.com:5433", u.Host)
				assert.Equal(t, "/insurance", u.Path)
				assert.Equal(t, "analyst", u.User.Username())
				pw, _ := u.User.Password()
				assert.Equal(t, "p@ss", pw)
				assert.Equal(t, "claims", u.Query().Get("search_path"))
				assert.Equal(t, "compute_wh", u.Query().Get("application_name"))
				assert.Empty(t, u.Query().Get("sslkey"))
			},
		},
		{
			name: "client key",
			cfg: config.WarehouseConfig{
				Account: "db", User: "svc", Database: "d",
				PrivateKeyPath: "/keys/svc.key", CertPath: "/keys/svc.crt",
			},
			check: func(t *testing.T, u *url.URL) {
				_, hasPw := u.User.Password()
				assert.False(t, hasPw)
				assert.Equal(t, "require", u.Query().Get("sslmode"))
				assert.Equal(t, "/keys/svc.key", u.Query().Get("sslkey"))
				assert.Equal(t, "/keys/svc.crt", u.Query().Get("sslcert"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(DSN(tt.cfg))
			require.NoError(t, err)
			tt.check(t, u)
		})
	}
}

func TestTableNameAndQueries(t *testing.T) {
	assert.Equal(t, `"claims"`, TableName(config.WarehouseConfig{Table: "claims"}))
	table := TableName(config.WarehouseConfig{Schema: "ins", Table: "claims"})
	assert.Equal(t, `"ins"."claims"`, table)

	q := searchQuery(table)
	assert.Contains(t, q, `FROM "ins"."claims"`)
	assert.Contains(t, q, "1 - (claim_vector <=> $1)")
	assert.Contains(t, q, "LIMIT $2")

	assert.Contains(t, createTableSQL(table, 768), "VECTOR(768)")
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "claims_claim_vector_idx" ON "ins"."claims" USING hnsw (claim_vector vector_cosine_ops)`,
		createIndexSQL(table, `"claims_claim_vector_idx"`))
	assert.Contains(t, upsertSQL(table), "ON CONFLICT (claim_id) DO UPDATE")
}

func TestConnectorFailureIsConfigurationError(t *testing.T) {
	c := NewConnector(config.WarehouseConfig{DSN: "postgres://u@127.0.0.1:1/d?connect_timeout=1", Timeout: 2 * time.Second})

	_, err := c.Pool(context.Background())
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)

	_, again := c.Pool(context.Background())
	assert.Same(t, err, again)
}

func TestLoaderNames(t *testing.T) {
	l := NewLoader(NewConnector(config.WarehouseConfig{Schema: "ins", Table: "claims"}))
	assert.Equal(t, `"ins"."claims"`, l.Table())
	assert.Equal(t, `"claims_claim_vector_idx"`, l.index)
}

func TestBootstrapCreatesExtensionBeforePool(t *testing.T) {
	cfg := config.WarehouseConfig{DSN: "postgres://u@db/d", Role: "loader"}

	assert.Empty(t, NewConnector(cfg).bootstrapSQL(), "query path does not touch extensions")

	c := NewConnector(cfg, WithCreateExtension())
	assert.Equal(t, []string{`SET ROLE "loader"`, "CREATE EXTENSION IF NOT EXISTS vector"}, c.bootstrapSQL())

	pcfg, err := c.poolConfig()
	require.NoError(t, err)
	assert.NotNil(t, pcfg.AfterConnect)
	assert.Equal(t, "db", pcfg.ConnConfig.Host)
}

func TestBootstrapFailureIsConfigurationError(t *testing.T) {
	c := NewConnector(config.WarehouseConfig{DSN: "postgres://u@127.0.0.1:1/d?connect_timeout=1", Timeout: 2 * time.Second},
		WithCreateExtension())

	_, err := c.Pool(context.Background())
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bootstrap", cerr.Reason)
}

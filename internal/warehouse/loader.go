package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/liao/claim-assistant/internal/rag"
)

// Loader 供导入工具写入 claims 表
type Loader struct {
	conn  *Connector
	table string
	index string
}

// NewLoader 写入 conn 配置的表。conn 需要带 WithCreateExtension 才能初始化新库。
func NewLoader(conn *Connector) *Loader {
	return &Loader{
		conn:  conn,
		table: TableName(conn.cfg),
		index: pgx.Identifier{conn.cfg.Table + "_claim_vector_idx"}.Sanitize(),
	}
}

func (l *Loader) Table() string { return l.table }

func createTableSQL(table string, dim int) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    claim_id TEXT PRIMARY KEY,
    claim_description TEXT NOT NULL,
    claim_vector VECTOR(%d) NOT NULL
)`, table, dim)
}

// 余弦距离检索用的 HNSW 索引
func createIndexSQL(table, index string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (claim_vector vector_cosine_ops)", index, table)
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (claim_id, claim_description, claim_vector)
VALUES ($1, $2, $3)
ON CONFLICT (claim_id) DO UPDATE SET
    claim_description = EXCLUDED.claim_description,
    claim_vector = EXCLUDED.claim_vector`, table)
}

// EnsureTable 创建 claims 表和向量索引。vector 扩展在建池时创建。
func (l *Loader) EnsureTable(ctx context.Context, dim int) error {
	pool, err := l.conn.Pool(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createTableSQL(l.table, dim)); err != nil {
		return fmt.Errorf("create claims table: %w", err)
	}
	if _, err := pool.Exec(ctx, createIndexSQL(l.table, l.index)); err != nil {
		return fmt.Errorf("create claims index: %w", err)
	}
	return nil
}

// Upsert 批量写入，同一 claim_id 覆盖旧值
func (l *Loader) Upsert(ctx context.Context, claims []rag.IndexedClaim) error {
	if len(claims) == 0 {
		return nil
	}
	pool, err := l.conn.Pool(ctx)
	if err != nil {
		return err
	}

	query := upsertSQL(l.table)
	batch := &pgx.Batch{}
	for _, c := range claims {
		batch.Queue(query, c.ID, c.Description, pgvector.NewVector(c.Vector))
	}
	br := pool.SendBatch(ctx, batch)
	for i := range claims {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert claim %s: %w", claims[i].ID, err)
		}
	}
	return br.Close()
}

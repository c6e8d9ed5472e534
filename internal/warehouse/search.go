package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/liao/claim-assistant/internal/config"
	"github.com/liao/claim-assistant/internal/rag"
)

// Searcher 在 claims 表上做余弦相似度 top-k 查询
type Searcher struct {
	conn    *Connector
	query   string
	timeout time.Duration
}

func NewSearcher(conn *Connector, cfg config.WarehouseConfig) *Searcher {
	return &Searcher{
		conn:    conn,
		query:   searchQuery(TableName(cfg)),
		timeout: cfg.Timeout,
	}
}

func searchQuery(table string) string {
	return fmt.Sprintf(`SELECT claim_id, claim_description, 1 - (claim_vector <=> $1) AS similarity
FROM %s
ORDER BY claim_vector <=> $1
LIMIT $2`, table)
}

func (s *Searcher) Search(ctx context.Context, vector []float32, k int) ([]rag.Claim, error) {
	pool, err := s.conn.Pool(ctx)
	if err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rows, err := pool.Query(ctx, s.query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query similar claims: %w", err)
	}
	defer rows.Close()

	claims := make([]rag.Claim, 0, k)
	for rows.Next() {
		var (
			c   rag.Claim
			sim float64
		)
		if err := rows.Scan(&c.ID, &c.Description, &sim); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.Similarity = float32(sim)
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}
	return claims, nil
}

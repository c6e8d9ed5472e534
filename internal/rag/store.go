package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"
)

const collectionName = "claims"

// Store 本地持久化的向量库，离线开发时代替数据仓库
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewStore 创建或加载向量存储。dir 为空时只在内存中。
// 查询走 QueryEmbedding，embedFunc 只在写入没有向量的文档时才会被调用。
func NewStore(dir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	if embedFunc == nil {
		embedFunc = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("claims must be added with precomputed vectors")
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("get/create collection: %w", err)
	}

	slog.Info("vector store loaded", "dir", dir, "count", col.Count())
	return &Store{db: db, collection: col}, nil
}

// Search 检索相似理赔，k 超过文档数时截断
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]Claim, error) {
	n := s.collection.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	docs, err := s.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	claims := make([]Claim, 0, len(docs))
	for _, d := range docs {
		claims = append(claims, Claim{
			ID:          d.ID,
			Description: d.Content,
			Similarity:  d.Similarity,
		})
	}
	return claims, nil
}

// AddClaims 批量写入带向量的理赔记录，相同 ID 覆盖
func (s *Store) AddClaims(ctx context.Context, claims []IndexedClaim) error {
	docs := make([]chromem.Document, 0, len(claims))
	for _, c := range claims {
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Description,
			Embedding: c.Vector,
		})
	}
	return s.collection.AddDocuments(ctx, docs, runtime.NumCPU())
}

// Count 返回文档数量
func (s *Store) Count() int {
	return s.collection.Count()
}

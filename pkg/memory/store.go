// Package memory remembers the parts a user has built and recalls the
// ones similar to a new request, so the model can reuse dimensions and
// naming. Recall is best effort: callers treat errors as "no recall".
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Cosine distance beyond which a prior part is not considered similar.
const maxRecallDistance = 0.6

// Config holds part memory configuration.
type Config struct {
	Path     string
	Provider EmbeddingProvider
	Logger   zerolog.Logger
}

// Store persists part descriptions with their embeddings and answers
// similarity queries. It implements agent.Recall.
type Store struct {
	db       *sql.DB
	provider EmbeddingProvider
	logger   zerolog.Logger
}

// Open creates or opens the part memory database.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("memory database path is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS parts (
			id          TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			created_at  TIMESTAMP NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS part_vectors USING vec0(
			part_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, cfg.Provider.Dimension())

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}

	return &Store{
		db:       db,
		provider: cfg.Provider,
		logger:   cfg.Logger.With().Str("component", "memory").Logger(),
	}, nil
}

// Remember stores a part description with its embedding.
func (s *Store) Remember(ctx context.Context, description string) error {
	embedding, err := s.provider.GenerateEmbedding(ctx, description)
	if err != nil {
		return fmt.Errorf("failed to embed description: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO parts (id, description, created_at) VALUES (?, ?, ?)`,
		id, description, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert part: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO part_vectors (part_id, embedding) VALUES (?, ?)`,
		id, string(embeddingJSON),
	); err != nil {
		return fmt.Errorf("failed to insert part vector: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug().Str("part_id", id).Msg("Part remembered")
	return nil
}

// Similar returns descriptions of the k most similar prior parts,
// nearest first. Parts beyond the distance gate are dropped.
func (s *Store) Similar(ctx context.Context, description string, k int) ([]string, error) {
	if k <= 0 {
		k = 3
	}

	embedding, err := s.provider.GenerateEmbedding(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			part_id,
			vec_distance_cosine(embedding, ?) as distance
		FROM part_vectors
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query part vectors: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var partID string
		var distance float64
		if err := rows.Scan(&partID, &distance); err != nil {
			return nil, err
		}
		if distance > maxRecallDistance {
			continue
		}
		ids = append(ids, partID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	descriptions := make([]string, 0, len(ids))
	for _, id := range ids {
		var desc string
		if err := s.db.QueryRowContext(ctx,
			`SELECT description FROM parts WHERE id = ?`, id,
		).Scan(&desc); err != nil {
			return nil, fmt.Errorf("failed to load part %s: %w", id, err)
		}
		descriptions = append(descriptions, desc)
	}
	return descriptions, nil
}

// Count returns the number of remembered parts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parts`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

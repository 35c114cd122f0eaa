package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
)

// PostgresSource reads id, title and description from one table. A NULL id
// becomes a nil ID; NULL text columns become empty strings.
type PostgresSource struct {
	db     *sql.DB
	query  string
	logger *slog.Logger
}

// NewPostgresSource reads from table through client.
func NewPostgresSource(client *postgres.Client, table string) *PostgresSource {
	return &PostgresSource{
		db:     client.DB,
		query:  documentsQuery(table),
		logger: slog.Default().With("component", "corpus", "source", "postgres", "table", table),
	}
}

func documentsQuery(table string) string {
	return fmt.Sprintf("SELECT id, title, description FROM %s ORDER BY id NULLS LAST", pq.QuoteIdentifier(table))
}

func (s *PostgresSource) Documents(ctx context.Context) ([]index.SourceDocument, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, apperrors.IOf(err, "querying documents")
	}
	defer rows.Close()

	var docs []index.SourceDocument
	for rows.Next() {
		var (
			id    sql.NullInt64
			title sql.NullString
			desc  sql.NullString
		)
		if err := rows.Scan(&id, &title, &desc); err != nil {
			return nil, apperrors.IOf(err, "scanning document row")
		}
		doc := index.SourceDocument{Title: title.String, Description: desc.String}
		if id.Valid {
			v := int(id.Int64)
			doc.ID = &v
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.IOf(err, "iterating document rows")
	}
	s.logger.Info("corpus loaded", "records", len(docs))
	return docs, nil
}

// Seed creates table when absent and upserts docs by id in one
// transaction. Records without an id are skipped; the number written is
// returned.
func Seed(ctx context.Context, client *postgres.Client, table string, docs []index.SourceDocument) (int, error) {
	quoted := pq.QuoteIdentifier(table)
	written := 0
	err := client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY, title TEXT NOT NULL DEFAULT '', description TEXT NOT NULL DEFAULT '')`,
			quoted)); err != nil {
			return fmt.Errorf("creating %s: %w", table, err)
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, title, description) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description`,
			quoted))
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, d := range docs {
			if d.ID == nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx, *d.ID, d.Title, d.Description); err != nil {
				return fmt.Errorf("upserting document %d: %w", *d.ID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.IOf(err, "seeding %s", table)
	}
	return written, nil
}

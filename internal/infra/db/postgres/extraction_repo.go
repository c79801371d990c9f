package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
)

const schema = `
CREATE TABLE IF NOT EXISTS ocr_extractions (
  id          UUID         PRIMARY KEY,
  image_url   TEXT         NOT NULL,
  archive_url TEXT,
  provider    VARCHAR(32)  NOT NULL,
  outcome     VARCHAR(32)  NOT NULL,
  text        TEXT         NOT NULL,
  created_at  TIMESTAMPTZ  NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ocr_extractions_created ON ocr_extractions (created_at DESC);`

type ExtractionRepository struct {
	db *sql.DB
}

func NewExtractionRepository(db *sql.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

func (r *ExtractionRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save inserts or updates an extraction record
func (r *ExtractionRepository) Save(ctx context.Context, e *domain.Extraction) error {
	const q = `
INSERT INTO ocr_extractions
  (id, image_url, archive_url, provider, outcome, text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  archive_url=EXCLUDED.archive_url,
  outcome=EXCLUDED.outcome,
  text=EXCLUDED.text;
`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		string(e.ID), dashIfEmpty(e.ImageURL), nullIfEmpty(e.ArchiveURL), dashIfEmpty(e.Provider), e.Outcome, e.Text, createdAt)
	return err
}

// Paginate returns a page of records ordered by created_at desc
func (r *ExtractionRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Extraction, error) {
	limit, offset := pageBounds(page, pageSize)

	const q = `
SELECT id, image_url, archive_url, provider, outcome, text, created_at
FROM ocr_extractions
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Extraction
	for rows.Next() {
		var e domain.Extraction
		var archive sql.NullString
		if err := rows.Scan(&e.ID, &e.ImageURL, &archive, &e.Provider, &e.Outcome, &e.Text, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ArchiveURL = archive.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
)

const schema = `
CREATE TABLE IF NOT EXISTS ocr_extractions (
  id          VARCHAR(36)  NOT NULL PRIMARY KEY,
  image_url   TEXT         NOT NULL,
  archive_url TEXT         NULL,
  provider    VARCHAR(32)  NOT NULL,
  outcome     VARCHAR(32)  NOT NULL,
  text        MEDIUMTEXT   NOT NULL,
  created_at  DATETIME(3)  NOT NULL,
  INDEX idx_ocr_extractions_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

type ExtractionRepository struct {
	db *sql.DB
}

func NewExtractionRepository(db *sql.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

// EnsureSchema creates the audit table when missing.
func (r *ExtractionRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save inserts an extraction record
func (r *ExtractionRepository) Save(ctx context.Context, e *domain.Extraction) error {
	const q = `
INSERT INTO ocr_extractions
  (id, image_url, archive_url, provider, outcome, text, created_at)
VALUES (?,?,?,?,?,?,?);
`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var archive sql.NullString
	if e.ArchiveURL != "" {
		archive = sql.NullString{String: e.ArchiveURL, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, q,
		e.ID, stringOrDash(e.ImageURL), archive, stringOrDash(e.Provider), e.Outcome, e.Text, createdAt.UTC())
	return err
}

// Paginate returns a page of records ordered by created_at desc
func (r *ExtractionRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Extraction, error) {
	limit, offset := normalizePage(page, pageSize)

	const q = `
SELECT id, image_url, archive_url, provider, outcome, text, created_at
FROM ocr_extractions
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
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

package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mystorykid/internal/domain"
)

// DownloadRepositoryPG implements domain.DownloadStore.
type DownloadRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewDownloadRepository creates a new download grant repository backed by PostgreSQL.
func NewDownloadRepository(pool *pgxpool.Pool) *DownloadRepositoryPG {
	return &DownloadRepositoryPG{pool: pool}
}

const downloadColumns = `id, user_id, book_id, order_id, book_title, object_path, file_size_bytes,
download_count, max_downloads, expires_at, last_download_at, created_at`

// GetByID fetches a grant by its identifier.
func (r *DownloadRepositoryPG) GetByID(ctx context.Context, downloadID string) (*domain.DigitalDownload, error) {
	query := `
SELECT ` + downloadColumns + `
FROM digital_downloads
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, downloadID)
	return scanDownload(row)
}

// ListByUser returns a user's grants, newest first.
func (r *DownloadRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.DigitalDownload, error) {
	query := `
SELECT ` + downloadColumns + `
FROM digital_downloads
WHERE user_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.DigitalDownload
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}

// IncrementDownloadCount spends one attempt on the grant. The increment runs
// entirely inside the database so concurrent replays of the same token cannot
// lose updates.
func (r *DownloadRepositoryPG) IncrementDownloadCount(ctx context.Context, downloadID string) (*domain.DigitalDownload, error) {
	query := `
UPDATE digital_downloads
SET download_count = download_count + 1,
    last_download_at = NOW()
WHERE id = $1
RETURNING ` + downloadColumns + `;
`
	row := r.pool.QueryRow(ctx, query, downloadID)
	return scanDownload(row)
}

// RecordAttempt inserts one audit row for a consumed download.
func (r *DownloadRepositoryPG) RecordAttempt(ctx context.Context, attempt *domain.DownloadAttempt) error {
	query := `
INSERT INTO download_attempts (id, download_id, ip_address, user_agent, country, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		attempt.ID,
		attempt.DownloadID,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Country,
		attempt.CreatedAt,
	)
	return err
}

func scanDownload(row pgx.Row) (*domain.DigitalDownload, error) {
	var d domain.DigitalDownload
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.BookID,
		&d.OrderID,
		&d.BookTitle,
		&d.ObjectPath,
		&d.FileSizeBytes,
		&d.DownloadCount,
		&d.MaxDownloads,
		&d.ExpiresAt,
		&d.LastDownloadAt,
		&d.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

package domain

import "context"

// DownloadStore defines persistence for download grants and their audit trail.
// IncrementDownloadCount must be a store-side atomic increment-and-read; the
// service never computes the new count itself.
type DownloadStore interface {
	GetByID(ctx context.Context, downloadID string) (*DigitalDownload, error)
	ListByUser(ctx context.Context, userID string) ([]DigitalDownload, error)
	IncrementDownloadCount(ctx context.Context, downloadID string) (*DigitalDownload, error)
	RecordAttempt(ctx context.Context, attempt *DownloadAttempt) error
}

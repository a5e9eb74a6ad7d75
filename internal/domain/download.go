package domain

import "time"

// DownloadStatus is the caller-facing lifecycle state of a download grant.
type DownloadStatus string

const (
	DownloadStatusActive    DownloadStatus = "active"
	DownloadStatusExpired   DownloadStatus = "expired"
	DownloadStatusExhausted DownloadStatus = "exhausted"
)

// DigitalDownload is the persisted grant authorizing a generated book
// artifact to be downloaded a bounded number of times before a bounded date.
type DigitalDownload struct {
	ID             string
	UserID         string
	BookID         string
	OrderID        string
	BookTitle      string
	ObjectPath     string
	FileSizeBytes  int64
	DownloadCount  int
	MaxDownloads   int
	ExpiresAt      time.Time
	LastDownloadAt *time.Time
	CreatedAt      time.Time
}

// Usable reports whether the grant still authorizes a download at the given
// time: not past its expiry and not over its consumption ceiling.
func (d *DigitalDownload) Usable(now time.Time) bool {
	return !now.After(d.ExpiresAt) && d.DownloadCount < d.MaxDownloads
}

// Status derives the grant status at the given time. Expiry takes precedence
// over exhaustion when both hold.
func (d *DigitalDownload) Status(now time.Time) DownloadStatus {
	if now.After(d.ExpiresAt) {
		return DownloadStatusExpired
	}
	if d.DownloadCount >= d.MaxDownloads {
		return DownloadStatusExhausted
	}
	return DownloadStatusActive
}

// Remaining returns the number of downloads left on the grant, never negative.
func (d *DigitalDownload) Remaining() int {
	if left := d.MaxDownloads - d.DownloadCount; left > 0 {
		return left
	}
	return 0
}

// DownloadAttempt is one audit record of a consumed download.
type DownloadAttempt struct {
	ID         string
	DownloadID string
	IPAddress  string
	Country    string
	UserAgent  string
	CreatedAt  time.Time
}

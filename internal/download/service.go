package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mystorykid/internal/domain"
	"mystorykid/internal/infra"
)

// Delivery windows used when minting tokens. The short window covers the
// post-checkout page, the long one covers emailed links.
const (
	DefaultTokenWindow = 60 * time.Minute
	EmailTokenWindow   = 24 * time.Hour
)

// Validation reasons, ordered by the check that produced them.
const (
	ReasonMalformed     = "malformed"
	ReasonTokenExpired  = "token_expired"
	ReasonNotFound      = "not_found"
	ReasonGrantExpired  = "grant_expired"
	ReasonLimitExceeded = "limit_exceeded"
)

// Signer issues short-lived signed URLs for stored artifacts.
type Signer interface {
	SignedURL(objectPath string, ttl time.Duration) (string, error)
}

// Validation is the outcome of checking a caller-supplied token. Grant is
// populated whenever the referenced record was found, so failure responses
// can carry its counters.
type Validation struct {
	Valid      bool
	Reason     string
	DownloadID string
	Grant      *domain.DigitalDownload
}

// AttemptInfo describes the requester behind a consumed download.
type AttemptInfo struct {
	IPAddress string
	Country   string
	UserAgent string
}

// Result is the payload handed back to a successfully validated downloader.
type Result struct {
	URL       string
	Filename  string
	ExpiresAt time.Time
	Remaining int
}

// StatusSnapshot is a read-only view of one grant, used by status endpoints
// that must never consume an attempt.
type StatusSnapshot struct {
	Grant     *domain.DigitalDownload
	Status    domain.DownloadStatus
	Remaining int
}

// Options configures the download service.
type Options struct {
	Store        domain.DownloadStore
	Signer       Signer
	Logger       *infra.Logger
	TokenWindow  time.Duration
	SignedURLTTL time.Duration
	Now          func() time.Time
}

// Service gates paid digital downloads behind time-limited, usage-budgeted
// access tokens.
type Service struct {
	store        domain.DownloadStore
	signer       Signer
	logger       infra.Logger
	tokenWindow  time.Duration
	signedURLTTL time.Duration
	now          func() time.Time
}

// NewService wires the service with its store and URL signer.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("download: store is required")
	}
	if opts.Signer == nil {
		return nil, errors.New("download: signer is required")
	}
	tokenWindow := opts.TokenWindow
	if tokenWindow <= 0 {
		tokenWindow = DefaultTokenWindow
	}
	signedTTL := opts.SignedURLTTL
	if signedTTL <= 0 {
		signedTTL = 15 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger infra.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = zerolog.New(io.Discard)
	}
	return &Service{
		store:        opts.Store,
		signer:       opts.Signer,
		logger:       logger,
		tokenWindow:  tokenWindow,
		signedURLTTL: signedTTL,
		now:          now,
	}, nil
}

// MintToken issues a token for the grant using the service default window.
func (s *Service) MintToken(downloadID string) (string, error) {
	return s.MintTokenWindow(downloadID, s.tokenWindow)
}

// MintTokenWindow issues a token with an explicit delivery window.
func (s *Service) MintTokenWindow(downloadID string, window time.Duration) (string, error) {
	token, err := MintToken(downloadID, window, s.now())
	if err != nil {
		return "", err
	}
	s.logger.Debug().
		Str("download_id", downloadID).
		Dur("window", window).
		Msg("download: minted access token")
	return token, nil
}

// ValidateToken checks a caller-supplied token against the token's own expiry
// and the referenced grant. It is read-only: validation never consumes an
// attempt, so callers can pre-check before spending one.
func (s *Service) ValidateToken(ctx context.Context, token string) (Validation, error) {
	claims, err := DecodeToken(token)
	if err != nil {
		return Validation{Reason: ReasonMalformed}, nil
	}
	now := s.now()
	if now.After(claims.ExpiresAt) {
		return Validation{Reason: ReasonTokenExpired, DownloadID: claims.DownloadID}, nil
	}
	grant, err := s.store.GetByID(ctx, claims.DownloadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Validation{Reason: ReasonNotFound, DownloadID: claims.DownloadID}, nil
		}
		return Validation{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if now.After(grant.ExpiresAt) {
		return Validation{Reason: ReasonGrantExpired, DownloadID: grant.ID, Grant: grant}, nil
	}
	if grant.DownloadCount >= grant.MaxDownloads {
		return Validation{Reason: ReasonLimitExceeded, DownloadID: grant.ID, Grant: grant}, nil
	}
	return Validation{Valid: true, DownloadID: grant.ID, Grant: grant}, nil
}

// ConsumeDownload spends one attempt on the grant. The increment is a single
// store-side atomic operation so a replayed token cannot race past the
// ceiling. The audit row is best-effort and never fails the download.
func (s *Service) ConsumeDownload(ctx context.Context, downloadID string, attempt AttemptInfo) (*domain.DigitalDownload, error) {
	updated, err := s.store.IncrementDownloadCount(ctx, downloadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	record := &domain.DownloadAttempt{
		ID:         uuid.NewString(),
		DownloadID: downloadID,
		IPAddress:  attempt.IPAddress,
		Country:    attempt.Country,
		UserAgent:  attempt.UserAgent,
		CreatedAt:  s.now(),
	}
	if err := s.store.RecordAttempt(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("download_id", downloadID).Msg("download: failed to record attempt")
	}
	s.logger.Info().
		Str("download_id", downloadID).
		Int("download_count", updated.DownloadCount).
		Int("max_downloads", updated.MaxDownloads).
		Msg("download: consumed attempt")
	return updated, nil
}

// SecureDownload is the full flow behind GET /downloads/{token}: validate,
// consume, then sign a short-lived URL for the stored artifact.
func (s *Service) SecureDownload(ctx context.Context, token string, attempt AttemptInfo) (*Result, Validation, error) {
	verdict, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, verdict, err
	}
	if !verdict.Valid {
		return nil, verdict, nil
	}
	updated, err := s.ConsumeDownload(ctx, verdict.DownloadID, attempt)
	if err != nil {
		return nil, verdict, err
	}
	ttl := s.signedURLTTL
	url, err := s.signer.SignedURL(updated.ObjectPath, ttl)
	if err != nil {
		return nil, verdict, fmt.Errorf("download: sign url: %w", err)
	}
	return &Result{
		URL:       url,
		Filename:  DeliveryFilename(updated.BookTitle),
		ExpiresAt: s.now().Add(ttl),
		Remaining: updated.Remaining(),
	}, verdict, nil
}

// Status returns a read-only grant snapshot for the status endpoint.
func (s *Service) Status(ctx context.Context, downloadID string) (*StatusSnapshot, error) {
	grant, err := s.store.GetByID(ctx, downloadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return &StatusSnapshot{
		Grant:     grant,
		Status:    grant.Status(s.now()),
		Remaining: grant.Remaining(),
	}, nil
}

// History lists a user's grants with their derived statuses.
func (s *Service) History(ctx context.Context, userID string) ([]StatusSnapshot, error) {
	grants, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	now := s.now()
	items := make([]StatusSnapshot, 0, len(grants))
	for i := range grants {
		grant := grants[i]
		items = append(items, StatusSnapshot{
			Grant:     &grant,
			Status:    grant.Status(now),
			Remaining: grant.Remaining(),
		})
	}
	return items, nil
}

package logintoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lumichat/rendezvous/domain"
	rerrors "github.com/lumichat/rendezvous/errors"
	"github.com/lumichat/rendezvous/log"
)

// Redemption is what a successfully redeemed token materializes: the user the
// token was issued to and the freshly allocated device identity.
type Redemption struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// Service issues and redeems single-use login tokens.
type Service struct {
	repo    Repository
	limiter *RateLimiter
	ttl     time.Duration
	logger  log.Logger
}

// NewService creates a login token service. A nil limiter disables
// throttling.
func NewService(repo Repository, limiter *RateLimiter, ttl time.Duration, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{repo: repo, limiter: limiter, ttl: ttl, logger: logger}
}

// Issue mints a token for userID. A throttled user gets an HTTPError with
// status 429, which the existing device's classifier maps to rate_limited.
func (s *Service) Issue(ctx context.Context, userID string) (*domain.LoginToken, error) {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		s.logger.Warn(ctx, "login token issuance throttled",
			map[string]interface{}{"user_id": userID})
		return nil, rerrors.NewHTTPError(http.StatusTooManyRequests, "login token requests throttled")
	}

	now := time.Now().UTC()
	record := &domain.LoginTokenRecord{
		ID:        uuid.NewString(),
		Token:     "lt_" + uuid.NewString(),
		UserID:    userID,
		Status:    domain.LoginTokenStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist login token: %w", err)
	}

	s.logger.Info(ctx, "login token issued",
		map[string]interface{}{"user_id": userID, "token_id": record.ID})

	return &domain.LoginToken{
		Value:     record.Token,
		ExpiresIn: s.ttl.Milliseconds(),
	}, nil
}

// Redeem consumes a token and allocates a device identity for the new
// device. Expired and already-consumed tokens are indistinguishable to the
// caller.
func (s *Service) Redeem(ctx context.Context, token string) (*Redemption, error) {
	record, err := s.repo.Consume(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, rerrors.NewExpired("login token unknown or already used")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume login token: %w", err)
	}
	if record.Expired(time.Now().UTC()) {
		return nil, rerrors.NewExpired("login token expired")
	}

	redemption := &Redemption{
		UserID:   record.UserID,
		DeviceID: uuid.NewString(),
	}
	s.logger.Info(ctx, "login token redeemed",
		map[string]interface{}{"user_id": record.UserID, "device_id": redemption.DeviceID})
	return redemption, nil
}

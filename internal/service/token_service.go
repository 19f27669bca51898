package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/refreshkeeper/internal/clock"
	"github.com/dtroode/refreshkeeper/internal/logger"
	"github.com/dtroode/refreshkeeper/internal/model"
	"github.com/dtroode/refreshkeeper/internal/token"
)

// Operation names reported to TokenMetrics.
const (
	OperationIssue   = "issue"
	OperationRefresh = "refresh"
	OperationRevoke  = "revoke"
)

// AccessTokenCodec mints and verifies signed access tokens.
type AccessTokenCodec interface {
	Mint(userID uuid.UUID) (string, error)
	Verify(tokenString string) (*token.Claims, bool)
}

// TokenMetrics receives lifecycle events from TokenService.
type TokenMetrics interface {
	ObserveRotation()
	ObserveReuse(revokedDescendants int)
	ObserveRevocation()
	ObservePruned(n int)
	ObserveFailure(operation string, err error)
}

// TokenPolicy holds the refresh token lifetimes.
type TokenPolicy struct {
	RefreshLifetime time.Duration
	RetentionTTL    time.Duration
}

// TokenService runs the refresh token lifecycle: issue, rotate, revoke and
// reuse detection. Every mutating operation loads a snapshot of the owning
// user, changes the snapshot and persists it exactly once through a
// version-checked Save.
type TokenService struct {
	codec    AccessTokenCodec
	store    model.UserStore
	clock    clock.Clock
	policy   TokenPolicy
	entropy  io.Reader
	reporter model.IncidentReporter
	metrics  TokenMetrics
	logger   *logger.Logger
}

// TokenServiceOption customizes a TokenService.
type TokenServiceOption func(*TokenService)

// WithEntropy replaces the random source used for refresh token values.
func WithEntropy(r io.Reader) TokenServiceOption {
	return func(s *TokenService) {
		s.entropy = r
	}
}

// WithIncidentReporter archives reuse incidents after they are persisted.
func WithIncidentReporter(r model.IncidentReporter) TokenServiceOption {
	return func(s *TokenService) {
		s.reporter = r
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m TokenMetrics) TokenServiceOption {
	return func(s *TokenService) {
		s.metrics = m
	}
}

func NewTokenService(
	codec AccessTokenCodec,
	store model.UserStore,
	clk clock.Clock,
	policy TokenPolicy,
	logger *logger.Logger,
	opts ...TokenServiceOption,
) *TokenService {
	if clk == nil {
		clk = clock.System{}
	}
	if policy.RefreshLifetime <= 0 {
		policy.RefreshLifetime = model.DefaultRefreshLifetime
	}
	if policy.RetentionTTL <= 0 {
		policy.RetentionTTL = model.DefaultRetentionTTL
	}

	s := &TokenService{
		codec:   codec,
		store:   store,
		clock:   clk,
		policy:  policy,
		entropy: rand.Reader,
		metrics: noopMetrics{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Issue creates a fresh refresh token for the user, prunes stale history and
// mints a matching access token.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID, ip string) (model.TokenPair, error) {
	pair, err := s.issue(ctx, userID, ip)
	if err != nil {
		s.metrics.ObserveFailure(OperationIssue, err)
	}
	return pair, err
}

func (s *TokenService) issue(ctx context.Context, userID uuid.UUID, ip string) (model.TokenPair, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("Token service: failed to get user",
			"user_id", userID,
			"error", err.Error())
		return model.TokenPair{}, fmt.Errorf("failed to get user: %w", err)
	}
	user = user.Clone()

	now := s.clock.Now()
	next, err := s.generateRefreshToken(now, ip)
	if err != nil {
		return model.TokenPair{}, err
	}
	user.RefreshTokens = append(user.RefreshTokens, next)
	pruned := user.PruneRefreshTokens(now, s.policy.RetentionTTL)

	if err := s.save(ctx, user); err != nil {
		return model.TokenPair{}, err
	}
	s.metrics.ObservePruned(pruned)

	access, err := s.codec.Mint(user.ID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to mint access token: %w", err)
	}

	s.logger.Info("Token service: refresh token issued",
		"user_id", user.ID,
		"token", next.Fingerprint(),
		"pruned", pruned)

	return model.TokenPair{AccessToken: access, RefreshToken: next.Value}, nil
}

// Refresh rotates a presented refresh token. Presenting a revoked token is
// treated as theft: the live tip of its chain is revoked, the change is
// persisted and the call fails with model.ErrInvalidToken.
func (s *TokenService) Refresh(ctx context.Context, presented, ip string) (model.TokenPair, error) {
	pair, err := s.refresh(ctx, presented, ip)
	if err != nil {
		s.metrics.ObserveFailure(OperationRefresh, err)
	}
	return pair, err
}

func (s *TokenService) refresh(ctx context.Context, presented, ip string) (model.TokenPair, error) {
	user, err := s.lookupOwner(ctx, presented)
	if err != nil {
		return model.TokenPair{}, err
	}

	current, ok := user.FindRefreshToken(presented)
	if !ok {
		return model.TokenPair{}, model.ErrInvalidToken
	}

	now := s.clock.Now()

	if current.IsRevoked() {
		s.logger.Warn("Token service: revoked refresh token presented",
			"user_id", user.ID,
			"token", current.Fingerprint(),
			"ip", ip)

		revoked, err := revokeDescendants(&user, current, now, ip)
		if err != nil {
			s.logger.Error("Token service: refresh token chain is corrupted",
				"user_id", user.ID,
				"error", err.Error())
			return model.TokenPair{}, err
		}
		if err := s.save(ctx, user); err != nil {
			return model.TokenPair{}, err
		}

		s.metrics.ObserveReuse(len(revoked))
		s.reportReuse(ctx, model.ReuseIncident{
			UserID:             user.ID,
			PresentedToken:     model.Fingerprint(presented),
			IP:                 ip,
			DetectedAt:         now,
			RevokedDescendants: revoked,
		})

		return model.TokenPair{}, model.ErrInvalidToken
	}

	if !current.IsActive(now) {
		s.logger.Debug("Token service: expired refresh token presented",
			"user_id", user.ID,
			"token", current.Fingerprint())
		return model.TokenPair{}, model.ErrInvalidToken
	}

	next, err := s.generateRefreshToken(now, ip)
	if err != nil {
		return model.TokenPair{}, err
	}

	// current points into user.RefreshTokens, so mutate it before appending.
	successor := next.Value
	current.Revoke(now, ip, model.ReasonRotated)
	current.ReplacedBy = &successor
	user.RefreshTokens = append(user.RefreshTokens, next)
	pruned := user.PruneRefreshTokens(now, s.policy.RetentionTTL)

	if err := s.save(ctx, user); err != nil {
		return model.TokenPair{}, err
	}
	s.metrics.ObserveRotation()
	s.metrics.ObservePruned(pruned)

	access, err := s.codec.Mint(user.ID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to mint access token: %w", err)
	}

	s.logger.Debug("Token service: refresh token rotated",
		"user_id", user.ID,
		"from", model.Fingerprint(presented),
		"to", next.Fingerprint(),
		"pruned", pruned)

	return model.TokenPair{AccessToken: access, RefreshToken: next.Value}, nil
}

// Revoke ends an active refresh token without replacing it.
func (s *TokenService) Revoke(ctx context.Context, value, ip string) error {
	err := s.revoke(ctx, uuid.Nil, value, ip)
	if err != nil {
		s.metrics.ObserveFailure(OperationRevoke, err)
	}
	return err
}

// RevokeForUser is Revoke restricted to tokens owned by userID. A token owned
// by someone else is reported as invalid.
func (s *TokenService) RevokeForUser(ctx context.Context, userID uuid.UUID, value, ip string) error {
	err := s.revoke(ctx, userID, value, ip)
	if err != nil {
		s.metrics.ObserveFailure(OperationRevoke, err)
	}
	return err
}

func (s *TokenService) revoke(ctx context.Context, owner uuid.UUID, value, ip string) error {
	user, err := s.lookupOwner(ctx, value)
	if err != nil {
		return err
	}
	if owner != uuid.Nil && user.ID != owner {
		s.logger.Warn("Token service: revoke attempted on foreign refresh token",
			"user_id", owner,
			"token", model.Fingerprint(value))
		return model.ErrInvalidToken
	}

	current, ok := user.FindRefreshToken(value)
	if !ok {
		return model.ErrInvalidToken
	}

	now := s.clock.Now()
	if !current.IsActive(now) {
		return model.ErrInvalidToken
	}

	current.Revoke(now, ip, model.ReasonRevoked)

	if err := s.save(ctx, user); err != nil {
		return err
	}
	s.metrics.ObserveRevocation()

	s.logger.Info("Token service: refresh token revoked",
		"user_id", user.ID,
		"token", current.Fingerprint(),
		"ip", ip)

	return nil
}

// MintAccessToken signs an access token for userID.
func (s *TokenService) MintAccessToken(userID uuid.UUID) (string, error) {
	return s.codec.Mint(userID)
}

// VerifyAccessToken returns the claims of a valid access token. Any
// verification failure yields false.
func (s *TokenService) VerifyAccessToken(tokenString string) (*token.Claims, bool) {
	return s.codec.Verify(tokenString)
}

// GetUserID resolves the caller of an authenticated request.
func (s *TokenService) GetUserID(_ context.Context, tokenString string) (uuid.UUID, error) {
	claims, ok := s.VerifyAccessToken(tokenString)
	if !ok || claims.UserID == uuid.Nil {
		return uuid.Nil, model.ErrInvalidToken
	}
	return claims.UserID, nil
}

func (s *TokenService) lookupOwner(ctx context.Context, value string) (model.User, error) {
	if value == "" {
		return model.User{}, model.ErrInvalidToken
	}

	user, err := s.store.FindByRefreshToken(ctx, value)
	if errors.Is(err, model.ErrNotFound) {
		s.logger.Debug("Token service: unknown refresh token presented",
			"token", model.Fingerprint(value))
		return model.User{}, model.ErrInvalidToken
	}
	if err != nil {
		s.logger.Error("Token service: failed to find refresh token owner",
			"token", model.Fingerprint(value),
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to find refresh token owner: %w", err)
	}

	return user.Clone(), nil
}

func (s *TokenService) save(ctx context.Context, user model.User) error {
	if err := user.CheckChain(); err != nil {
		s.logger.Error("Token service: refusing to persist corrupted chain",
			"user_id", user.ID,
			"error", err.Error())
		return err
	}

	user.UpdatedAt = s.clock.Now()
	if err := s.store.Save(ctx, user); err != nil {
		if errors.Is(err, model.ErrPersistenceConflict) {
			s.logger.Info("Token service: concurrent update detected",
				"user_id", user.ID)
		} else {
			s.logger.Error("Token service: failed to save user",
				"user_id", user.ID,
				"error", err.Error())
		}
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

func (s *TokenService) generateRefreshToken(now time.Time, ip string) (model.RefreshToken, error) {
	buf := make([]byte, model.RefreshTokenBytes)
	if _, err := io.ReadFull(s.entropy, buf); err != nil {
		return model.RefreshToken{}, fmt.Errorf("failed to read random bytes: %w", err)
	}

	return model.RefreshToken{
		Value:       base64.StdEncoding.EncodeToString(buf),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.policy.RefreshLifetime),
		CreatedByIP: ip,
	}, nil
}

func (s *TokenService) reportReuse(ctx context.Context, incident model.ReuseIncident) {
	if s.reporter == nil {
		return
	}

	incident.ID = uuid.New()
	if err := s.reporter.ReportReuse(ctx, incident); err != nil {
		s.logger.Warn("Token service: failed to archive reuse incident",
			"user_id", incident.UserID,
			"incident_id", incident.ID,
			"error", err.Error())
	}
}

// revokeDescendants follows replaced-by pointers from a revoked token and
// revokes the first still-active descendant. The walk is bounded by the
// number of tokens the user holds.
func revokeDescendants(user *model.User, from *model.RefreshToken, now time.Time, ip string) ([]string, error) {
	reason := model.ReasonReusePrefix + from.Value

	var revoked []string
	cur := from
	for steps := 0; cur.ReplacedBy != nil; steps++ {
		if steps >= len(user.RefreshTokens) {
			return nil, fmt.Errorf("%w: replaced-by cycle from %s", model.ErrChainCorrupted, from.Fingerprint())
		}

		next, ok := user.FindRefreshToken(*cur.ReplacedBy)
		if !ok {
			return nil, fmt.Errorf("%w: token %s points to a missing successor", model.ErrChainCorrupted, cur.Fingerprint())
		}

		if next.IsActive(now) {
			next.Revoke(now, ip, reason)
			revoked = append(revoked, next.Fingerprint())
			break
		}
		cur = next
	}

	return revoked, nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveRotation()             {}
func (noopMetrics) ObserveReuse(int)             {}
func (noopMetrics) ObserveRevocation()           {}
func (noopMetrics) ObservePruned(int)            {}
func (noopMetrics) ObserveFailure(string, error) {}

package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gatewaycore/server/internal/audit"
	gwerrors "github.com/gatewaycore/server/internal/errors"
	"github.com/gatewaycore/server/internal/logger"
	"github.com/gatewaycore/server/internal/metrics"
	"github.com/gatewaycore/server/internal/storage"
	"github.com/rs/zerolog"
)

// Config tunes the authentication pipeline.
type Config struct {
	TimestampTolerance time.Duration // |now - Timestamp| bound (default 5m)
	RequireTimestamp   bool          // reject requests without a Timestamp parameter
	NonceWindow        time.Duration // nonce validity window (default 15m)
	ReplayWindow       time.Duration // fingerprint retention window (default 1h)
	Lockout            LockoutConfig
}

// DefaultConfig returns the documented defaults. Timestamp remains optional
// for backward compatibility.
func DefaultConfig() Config {
	return Config{
		TimestampTolerance: 5 * time.Minute,
		RequireTimestamp:   false,
		NonceWindow:        15 * time.Minute,
		ReplayWindow:       time.Hour,
		Lockout:            DefaultLockoutConfig(),
	}
}

// TeamSource is the slice of the store the authenticator consumes.
type TeamSource interface {
	GetTeam(ctx context.Context, slug string) (storage.Team, error)
	TouchTeamLogin(ctx context.Context, slug string, at time.Time) error
}

// Request is one signed merchant request to authenticate.
type Request struct {
	TeamSlug string
	Params   map[string]string
	Token    string
	ClientIP string
}

// Result is a successful authentication outcome. Duration is the observed
// processing time, reported as a side value.
type Result struct {
	Team     storage.Team
	Duration time.Duration
}

// Authenticator validates signed-parameter tokens with replay protection
// and progressive lockout.
type Authenticator struct {
	cfg     Config
	teams   TeamSource
	lockout *Lockout
	replays *ReplayCache
	metrics *metrics.Metrics
	audit   audit.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

// AuthOption customizes the authenticator.
type AuthOption func(*Authenticator)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) AuthOption {
	return func(a *Authenticator) { a.metrics = m }
}

// WithAudit sets the audit recorder.
func WithAudit(rec audit.Recorder) AuthOption {
	return func(a *Authenticator) { a.audit = rec }
}

// WithLogger sets the authenticator logger.
func WithLogger(l zerolog.Logger) AuthOption {
	return func(a *Authenticator) { a.logger = l }
}

// WithNow injects the time source used for timestamp validation.
func WithNow(now func() time.Time) AuthOption {
	return func(a *Authenticator) { a.now = now }
}

// WithLockout installs a pre-built lockout tracker (tests use compressed
// windows).
func WithLockout(l *Lockout) AuthOption {
	return func(a *Authenticator) { a.lockout = l }
}

// New creates an authenticator over the given team source.
func New(cfg Config, teams TeamSource, opts ...AuthOption) *Authenticator {
	if cfg.TimestampTolerance <= 0 {
		cfg.TimestampTolerance = 5 * time.Minute
	}
	if cfg.NonceWindow <= 0 {
		cfg.NonceWindow = 15 * time.Minute
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = time.Hour
	}

	a := &Authenticator{
		cfg:     cfg,
		teams:   teams,
		replays: NewReplayCache(0),
		audit:   audit.Nop{},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.lockout == nil {
		a.lockout = NewLockout(cfg.Lockout)
	}
	return a
}

// Lockout exposes the lockout tracker (for admin surfaces and tests).
func (a *Authenticator) Lockout() *Lockout {
	return a.lockout
}

// Close stops the replay cache sweep.
func (a *Authenticator) Close() error {
	a.replays.Stop()
	return nil
}

// Authenticate runs the full pipeline: lockout gate, team lookup, timestamp
// and nonce validation, constant-time token check, replay fingerprint.
// Every outcome is recorded as an attempt.
func (a *Authenticator) Authenticate(ctx context.Context, req Request) (Result, error) {
	start := a.now()

	result, err := a.authenticate(ctx, req)
	result.Duration = a.now().Sub(start)

	outcome := "success"
	if err != nil {
		outcome = string(gwerrors.KindOf(err))
	}
	if a.metrics != nil {
		a.metrics.ObserveAuth(outcome, result.Duration)
	}
	a.audit.Record(ctx, audit.Entry{
		Kind:     "auth",
		TeamSlug: req.TeamSlug,
		Outcome:  outcome,
	})
	if err != nil {
		a.logger.Warn().
			Str("team_slug", req.TeamSlug).
			Str("outcome", outcome).
			Str("token", logger.TruncateToken(req.Token)).
			Msg("auth.failed")
	}

	return result, err
}

func (a *Authenticator) authenticate(ctx context.Context, req Request) (Result, error) {
	if req.TeamSlug == "" || req.Token == "" || len(req.Params) == 0 {
		if req.TeamSlug != "" {
			a.lockout.Observe(req.TeamSlug, req.ClientIP)
		}
		return Result{}, gwerrors.New(gwerrors.KindMissingParameters,
			"team slug, token, and request parameters are required")
	}
	if len(req.TeamSlug) > storage.MaxTeamSlugLength {
		return Result{}, gwerrors.New(gwerrors.KindTeamNotFound, "unknown team")
	}

	// Blocked teams fail before the secret is ever consulted. The refused
	// attempt still lands in the trail so the window tells the whole story.
	if blocked, until := a.lockout.Blocked(req.TeamSlug, req.ClientIP); blocked {
		a.lockout.Observe(req.TeamSlug, req.ClientIP)
		return Result{}, gwerrors.Newf(gwerrors.KindTeamBlocked,
			"team is temporarily blocked until %s", until.UTC().Format(time.RFC3339))
	}

	team, err := a.teams.GetTeam(ctx, req.TeamSlug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.recordFailure(req)
			return Result{}, gwerrors.New(gwerrors.KindTeamNotFound, "unknown team")
		}
		return Result{}, gwerrors.Wrap(gwerrors.KindInternal, "team lookup failed", err)
	}
	if !team.Active || team.Locked {
		a.recordFailure(req)
		return Result{}, gwerrors.New(gwerrors.KindTeamInactive, "team is inactive or locked")
	}

	if err := a.validateTimestamp(req.Params); err != nil {
		a.recordFailure(req)
		return Result{}, err
	}

	expected := ComputeToken(req.Params, team.SecretKey)
	if !TokensEqual(req.Token, expected) {
		a.recordFailure(req)
		return Result{}, gwerrors.New(gwerrors.KindInvalidToken, "token signature mismatch")
	}

	// Nonce first use is recorded here; repeat use within the window is a
	// replay regardless of the fingerprint check below.
	if nonce, ok := lookupParam(req.Params, "Nonce"); ok && nonce != "" {
		if a.replays.CheckAndSet("nonce:"+req.TeamSlug+":"+nonce, a.cfg.NonceWindow) {
			a.recordReplay(req)
			return Result{}, gwerrors.New(gwerrors.KindReplayDetected, "nonce already used")
		}
	}

	fingerprint := Fingerprint(req.TeamSlug, req.Token, req.Params)
	if a.replays.CheckAndSet("fp:"+fingerprint, a.cfg.ReplayWindow) {
		a.recordReplay(req)
		return Result{}, gwerrors.New(gwerrors.KindReplayDetected, "request already seen")
	}

	a.lockout.Record(req.TeamSlug, req.ClientIP, true)

	// Last-login bookkeeping is best-effort and never fails the request.
	if err := a.teams.TouchTeamLogin(ctx, req.TeamSlug, a.now().UTC()); err != nil {
		a.logger.Debug().Err(err).Str("team_slug", req.TeamSlug).Msg("auth.touch_login_failed")
	}

	return Result{Team: team}, nil
}

func (a *Authenticator) recordFailure(req Request) {
	blocked, duration := a.lockout.Record(req.TeamSlug, req.ClientIP, false)
	if blocked {
		level := a.lockout.BlockLevel(req.TeamSlug)
		if a.metrics != nil {
			a.metrics.ObserveLockout(levelLabel(level))
		}
		a.logger.Warn().
			Str("team_slug", req.TeamSlug).
			Int("level", level).
			Dur("block_duration", duration).
			Msg("auth.team_blocked")
	}
}

func (a *Authenticator) recordReplay(req Request) {
	// A replay is an attack signal, not a credential failure; it is
	// recorded but does not advance the lockout escalation.
	a.lockout.Record(req.TeamSlug, req.ClientIP, true)
	if a.metrics != nil {
		a.metrics.ReplayHitsTotal.Inc()
	}
}

// validateTimestamp enforces |now - Timestamp| <= tolerance when the
// parameter is present. Absence is allowed unless RequireTimestamp is set.
func (a *Authenticator) validateTimestamp(params map[string]string) error {
	raw, ok := lookupParam(params, "Timestamp")
	if !ok || raw == "" {
		if a.cfg.RequireTimestamp {
			return gwerrors.New(gwerrors.KindTimestampInvalid, "timestamp parameter is required")
		}
		return nil
	}

	ts, err := parseInstant(raw)
	if err != nil {
		return gwerrors.New(gwerrors.KindTimestampInvalid, "timestamp is not a valid instant")
	}

	skew := a.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.cfg.TimestampTolerance {
		return gwerrors.Newf(gwerrors.KindTimestampInvalid,
			"timestamp outside the %s tolerance", a.cfg.TimestampTolerance)
	}
	return nil
}

// lookupParam finds a parameter by case-insensitive name.
func lookupParam(params map[string]string, name string) (string, bool) {
	if v, ok := params[name]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// parseInstant accepts RFC3339 or unix seconds.
func parseInstant(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}

func levelLabel(level int) string {
	switch {
	case level <= 1:
		return "1"
	case level == 2:
		return "2"
	case level == 3:
		return "3"
	case level == 4:
		return "4"
	default:
		return "5+"
	}
}

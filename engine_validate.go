package authcore

import (
	"context"

	"github.com/lumapos/authcore/internal/flows"
	internalmetrics "github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/session"
)

// ValidateSession turns a bearer token into an authenticated Identity. On
// failure it returns one of the session error sentinels; callers collapse
// them into a uniform unauthenticated response while the specific cause is
// logged here for security monitoring.
func (e *Engine) ValidateSession(ctx context.Context, token string) (Identity, error) {
	if err := e.checkOpen(); err != nil {
		return Identity{}, err
	}

	deps := flows.ValidateDeps{
		ParseToken:       e.tokens.Parse,
		Now:              e.now,
		SessionTTL:       e.config.Session.TTL,
		SessionTimeout:   e.config.Session.Timeout,
		RevalidateAfter:  e.config.Session.RevalidateAfter,
		AllowStoreBypass: e.config.Session.AllowStoreBypass,
		FindUser:         e.userProvider.FindUserByID,
	}
	if e.sessions != nil {
		deps.Store = e.sessions
	}
	if e.sessionCache != nil {
		deps.LocalGet = e.sessionCache.Get
		deps.LocalSet = func(sid string, sess *session.Session) {
			e.sessionCache.Add(sid, sess)
		}
	}

	result := flows.RunValidate(ctx, token, deps)
	if result.Failure != flows.ValidateFailureNone {
		return Identity{}, e.validateFailure(result)
	}

	if result.FromLocalCache {
		e.metrics.Inc(internalmetrics.MetricSessionLocalHit)
	}
	if result.Revalidated {
		e.metrics.Inc(internalmetrics.MetricSessionRevalidated)
	}
	e.metrics.Inc(internalmetrics.MetricValidateSuccess)

	return identityFromSession(result.Session), nil
}

func (e *Engine) validateFailure(result flows.ValidateResult) error {
	e.metrics.Inc(internalmetrics.MetricValidateFailure)

	var err error
	switch result.Failure {
	case flows.ValidateFailureInvalidToken:
		err = ErrInvalidSession
	case flows.ValidateFailureExpired:
		err = ErrSessionExpiredOrRevoked
	case flows.ValidateFailureMismatch:
		err = ErrSessionMismatch
	case flows.ValidateFailureTimedOut:
		err = ErrSessionTimedOut
	case flows.ValidateFailureDisabled:
		err = ErrAccountDisabled
	case flows.ValidateFailureUserNotFound:
		err = ErrUserNotFound
	case flows.ValidateFailureStoreUnavailable:
		e.metrics.Inc(internalmetrics.MetricSessionStoreDown)
		err = ErrSessionStoreUnavailable
	default:
		err = ErrInvalidSession
	}

	event := e.logger.Debug().Str("reason", err.Error())
	if result.Err != nil {
		event = event.AnErr("cause", result.Err)
	}
	if result.Claims != nil {
		event = event.Int64("user_id", result.Claims.UID)
	}
	event.Msg("session validation failed")

	return err
}

// dropLocalSession evicts one session snapshot from the per-process cache.
func (e *Engine) dropLocalSession(sessionID string) {
	if e.sessionCache != nil {
		e.sessionCache.Remove(sessionID)
	}
}

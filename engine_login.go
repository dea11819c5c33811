package authcore

import (
	"context"

	"github.com/google/uuid"

	"github.com/lumapos/authcore/session"
)

// Login verifies credentials, creates a session record, and issues a
// bearer token. Bad username and bad password are indistinguishable to the
// caller.
func (e *Engine) Login(ctx context.Context, username, pass string) (LoginResult, error) {
	if err := e.checkOpen(); err != nil {
		return LoginResult{}, err
	}

	user, hash, err := e.userProvider.FindUserByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, err
	}
	if user == nil || hash == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, hash)
	if err != nil || !ok {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsUse {
		return LoginResult{}, ErrAccountDisabled
	}

	if e.config.Password.RehashOnLogin {
		e.maybeRehash(ctx, user.ID, pass, hash)
	}

	now := e.now()
	sess := &session.Session{
		SessionID:       uuid.NewString(),
		UserID:          user.ID,
		Username:        user.Username,
		DisplayName:     user.DisplayName,
		RoleID:          user.RoleID,
		Role:            user.Role,
		RoleDisplayName: user.RoleDisplayName,
		BranchID:        user.BranchID,
		IsUse:           user.IsUse,
		IsActive:        user.IsActive,
		CreatedAt:       now.Unix(),
		LastValidatedAt: now.Unix(),
	}

	if e.sessions != nil {
		if err := e.sessions.Save(ctx, sess, e.config.Session.TTL); err != nil {
			return LoginResult{}, err
		}
	}

	token, err := e.tokens.Create(user.ID, sess.SessionID, user.BranchID, user.Role)
	if err != nil {
		if e.sessions != nil {
			_ = e.sessions.Delete(ctx, sess.SessionID)
		}
		return LoginResult{}, err
	}

	e.emitAudit(ctx, AuditEvent{
		ActorID:    user.ID,
		TargetType: "session",
		TargetID:   sess.SessionID,
		Action:     "login",
		Success:    true,
	})

	return LoginResult{Token: token, Identity: identityFromSession(sess)}, nil
}

// maybeRehash upgrades a stored hash produced under outdated cost
// parameters. Failures are logged and never fail the login.
func (e *Engine) maybeRehash(ctx context.Context, userID int64, pass, storedHash string) {
	needs, err := e.hasher.NeedsRehash(storedHash)
	if err != nil || !needs {
		return
	}
	fresh, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, userID, fresh); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", userID).Msg("password rehash failed")
	}
}

// Logout revokes the identity's session.
func (e *Engine) Logout(ctx context.Context, identity Identity) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.dropLocalSession(identity.SessionID)
	if e.sessions != nil {
		if err := e.sessions.Delete(ctx, identity.SessionID); err != nil {
			return err
		}
	}

	e.emitAudit(ctx, AuditEvent{
		ActorID:    identity.ID,
		TargetType: "session",
		TargetID:   identity.SessionID,
		Action:     "logout",
		Success:    true,
	})
	return nil
}

// RevokeUserSessions destroys every tracked session of a user, forcing a
// fresh login. Used when an account is disabled or its role reassigned.
func (e *Engine) RevokeUserSessions(ctx context.Context, actorID, userID int64) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	if e.sessionCache != nil {
		for _, sid := range e.sessionCache.Keys() {
			if sess, ok := e.sessionCache.Get(sid); ok && sess.UserID == userID {
				e.sessionCache.Remove(sid)
			}
		}
	}
	if e.sessions != nil {
		if err := e.sessions.DeleteAllForUser(ctx, userID); err != nil {
			return err
		}
	}

	e.emitAudit(ctx, AuditEvent{
		ActorID:    actorID,
		TargetType: "user",
		TargetID:   formatID(userID),
		Action:     "revoke_sessions",
		Success:    true,
	})
	return nil
}

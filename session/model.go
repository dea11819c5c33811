package session

import "time"

// Session is one stored bearer session record. It is created at login,
// refreshed in place by periodic re-validation, and destroyed on logout,
// revocation, or natural expiry. BranchID is nil for users without a
// selected branch (head-office administrators).
type Session struct {
	SessionID       string
	UserID          int64
	Username        string
	DisplayName     string
	RoleID          int64
	Role            string
	RoleDisplayName string
	BranchID        *int64
	IsUse           bool
	IsActive        bool

	CreatedAt       int64
	LastValidatedAt int64
}

// RevalidationDue reports whether the record's last validation is older than
// the given interval, or the record is missing fields a complete snapshot
// requires.
func (s *Session) RevalidationDue(now time.Time, interval time.Duration) bool {
	if s.Username == "" || s.RoleID == 0 {
		return true
	}
	if interval <= 0 {
		return false
	}
	return now.Unix()-s.LastValidatedAt >= int64(interval/time.Second)
}

package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lumapos/authcore"
)

const userSelect = `
SELECT u.id, u.username, u.display_name, u.role_id, r.name, r.display_name,
       u.branch_id, u.is_use, u.is_active, u.password_hash
FROM users u
JOIN roles r ON r.id = u.role_id
`

func scanUser(row pgx.Row) (*authcore.UserRecord, string, error) {
	var (
		user authcore.UserRecord
		hash string
	)
	err := row.Scan(
		&user.ID, &user.Username, &user.DisplayName, &user.RoleID,
		&user.Role, &user.RoleDisplayName, &user.BranchID,
		&user.IsUse, &user.IsActive, &hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("scan user: %w", err)
	}
	return &user, hash, nil
}

// FindUserByID returns the canonical user row, or nil when absent.
func (s *Store) FindUserByID(ctx context.Context, userID int64) (*authcore.UserRecord, error) {
	user, _, err := scanUser(s.pool.QueryRow(ctx, userSelect+`WHERE u.id = $1`, userID))
	return user, err
}

// FindUserByUsername returns the user row and its stored password hash, or
// nil when absent.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*authcore.UserRecord, string, error) {
	return scanUser(s.pool.QueryRow(ctx, userSelect+`WHERE u.username = $1`, username))
}

// UpdatePasswordHash rewrites one user's stored hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

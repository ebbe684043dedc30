package user

import (
	"context"
	"fmt"
	"time"

	"github.com/alecgard/taskforge/internal/database"
)

// Store provides database operations for users and sessions.
type Store struct {
	db *database.DB
}

// NewStore creates a new user store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, name, password_hash, created_at, updated_at`

func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	if err := scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user. A duplicate email surfaces as a unique violation.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`INSERT INTO users (email, name, password_hash)
			 VALUES ($1, $2, $3)
			 RETURNING `+userColumns,
			in.Email, in.Name, in.PasswordHash,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by normalized email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// CreateSession persists the session for a freshly issued refresh token.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	err := s.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO sessions (jti, user_id, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		sess.JTI, sess.UserID, sess.ExpiresAt,
	).Scan(&sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSession looks up a session by jti.
func (s *Store) GetSession(ctx context.Context, jti string) (*Session, error) {
	sess := &Session{}
	err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT jti, user_id, expires_at, revoked_at, created_at
		 FROM sessions WHERE jti = $1`, jti,
	).Scan(&sess.JTI, &sess.UserID, &sess.ExpiresAt, &sess.RevokedAt, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return sess, nil
}

// RevokeSession marks the session revoked. It reports false when the session
// was already revoked, so only one of two racing refreshes wins.
func (s *Store) RevokeSession(ctx context.Context, jti string, at time.Time) (bool, error) {
	tag, err := s.db.Conn(ctx).Exec(ctx,
		`UPDATE sessions SET revoked_at = $2
		 WHERE jti = $1 AND revoked_at IS NULL`, jti, at)
	if err != nil {
		return false, fmt.Errorf("revoking session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeUserSession revokes the session only if it belongs to userID.
func (s *Store) RevokeUserSession(ctx context.Context, userID, jti string, at time.Time) error {
	_, err := s.db.Conn(ctx).Exec(ctx,
		`UPDATE sessions SET revoked_at = $3
		 WHERE user_id = $1 AND jti = $2 AND revoked_at IS NULL`, userID, jti, at)
	if err != nil {
		return fmt.Errorf("revoking user session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before cutoff.
func (s *Store) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Conn(ctx).Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

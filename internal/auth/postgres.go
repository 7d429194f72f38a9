package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"bugtrail.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts() AccountStore       { return &accountStore{db: s.db} }
func (s *PGStore) Sessions() SessionStore       { return &sessionStore{db: s.db} }
func (s *PGStore) Revocations() RevocationStore { return &revocationStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Account store ------------------------------------------------------------

type accountStore struct{ db *sql.DB }

const accountColumns = `id, username, email, password_hash, role, is_active, failed_attempts, locked_until, last_login, created_at`

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, username, email, password_hash, role, is_active)
		 values($1,$2,$3,$4,$5,$6)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Role, a.Active,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id))
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email))
}

func (s *accountStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where username=$1`, username))
}

func (s *accountStore) scanOne(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role,
		&a.Active, &a.FailedAttempts, &a.LockedUntil, &a.LastLogin, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// RecordFailedAttempt relies on a single UPDATE so that concurrent failures
// against the same account serialize at the storage layer. Two racing
// increments may still each observe a stale pre-read elsewhere; the policy
// tolerates a small overshoot past the nominal threshold.
func (s *accountStore) RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, deadline time.Time) (int, *time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`update accounts
		    set failed_attempts = failed_attempts + 1,
		        locked_until = case when failed_attempts + 1 >= $2 then $3 else locked_until end
		  where id = $1
		  returning failed_attempts, locked_until`,
		id, maxAttempts, deadline.UTC(),
	)
	var (
		attempts    int
		lockedUntil *time.Time
	)
	if err := row.Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

func (s *accountStore) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts
		    set failed_attempts = 0, locked_until = null, last_login = $2
		  where id = $1`,
		id, at.UTC(),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Session store ------------------------------------------------------------

type sessionStore struct{ db *sql.DB }

const sessionColumns = `id, account_id, refresh_token_jti, ip_address, user_agent, created_at, expires_at, last_activity`

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, account_id, refresh_token_jti, ip_address, user_agent, expires_at)
		 values($1,$2,$3,$4,$5,$6)`,
		sess.ID, sess.AccountID, sess.RefreshTokenID, sess.IP, sess.UserAgent, sess.ExpiresAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *sessionStore) FindByRefreshTokenID(ctx context.Context, jti string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where refresh_token_jti=$1`, jti)
	var sess Session
	err := row.Scan(&sess.ID, &sess.AccountID, &sess.RefreshTokenID, &sess.IP,
		&sess.UserAgent, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) ListByAccount(ctx context.Context, accountID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions where account_id=$1 order by created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.AccountID, &sess.RefreshTokenID, &sess.IP,
			&sess.UserAgent, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastActivity); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where id=$1`, id)
	return err
}

// InvalidateAll runs in one transaction: every refresh token id held by the
// account's sessions lands in the revocation ledger before the sessions are
// removed. Partial failure rolls the whole operation back.
func (s *sessionStore) InvalidateAll(ctx context.Context, accountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into token_revocations(token_id, class, expires_at)
		 select refresh_token_jti, 'refresh', expires_at from sessions where account_id=$1
		 on conflict (token_id) do nothing`, accountID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`delete from sessions where account_id=$1`, accountID); err != nil {
		return err
	}
	return tx.Commit()
}

// Revocation store ----------------------------------------------------------

type revocationStore struct{ db *sql.DB }

func (s *revocationStore) Revoke(ctx context.Context, tokenID string, class TokenClass, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into token_revocations(token_id, class, expires_at)
		 values($1,$2,$3)
		 on conflict (token_id) do nothing`,
		tokenID, class, expiresAt.UTC(),
	)
	return err
}

func (s *revocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_revocations where token_id=$1)`, tokenID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *revocationStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from token_revocations where expires_at < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

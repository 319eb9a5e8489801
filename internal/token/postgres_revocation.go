package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresRevocationStore keeps revoked ids in the revoked_tokens table
// (see pkg/database/migrations). Rows past expires_at are ignored on read
// and removed by Prune.
type PostgresRevocationStore struct {
	db   *sqlx.DB
	now  func() time.Time
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewPostgresRevocationStore prunes expired rows every cleanupInterval; zero
// disables the background loop.
func NewPostgresRevocationStore(db *sqlx.DB, cleanupInterval time.Duration) *PostgresRevocationStore {
	s := &PostgresRevocationStore{db: db, now: time.Now, stop: make(chan struct{})}
	if cleanupInterval > 0 {
		s.wg.Add(1)
		go s.loop(cleanupInterval)
	}
	return s
}

func (s *PostgresRevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	query := `INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO UPDATE SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)`
	if _, err := s.db.ExecContext(ctx, query, jti, s.now().Add(ttl).UTC()); err != nil {
		return fmt.Errorf("insert revoked token: %w", err)
	}
	return nil
}

func (s *PostgresRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	query := `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > $2)`
	if err := s.db.GetContext(ctx, &revoked, query, jti, s.now().UTC()); err != nil {
		return false, fmt.Errorf("select revoked token: %w", err)
	}
	return revoked, nil
}

// Prune deletes expired rows and returns how many were removed.
func (s *PostgresRevocationStore) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("prune revoked tokens: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the cleanup loop. The db handle is owned by the caller.
func (s *PostgresRevocationStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

func (s *PostgresRevocationStore) loop(interval time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			_, _ = s.Prune(ctx)
			cancel()
		}
	}
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sessionguard/authgate/internal/core/domain"
)

// MagicLinkRepository implements ports.MagicLinkRepository on PostgreSQL.
// Consumption is a conditional UPDATE, so the row lock decides the single
// winner among concurrent redeemers.
type MagicLinkRepository struct {
	db DBTX
}

func NewMagicLinkRepository(db DBTX) *MagicLinkRepository {
	return &MagicLinkRepository{db: db}
}

func (r *MagicLinkRepository) Insert(ctx context.Context, link *domain.MagicLink) error {
	if !link.ExpiresAt.After(link.CreatedAt) {
		return fmt.Errorf("insert magic link: %w", domain.ErrInvalidInput)
	}

	query :=
		`INSERT INTO magic_links (token_hash, email, pending_user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		link.TokenHash, link.Email, nullString(link.PendingUserID),
		link.CreatedAt.UTC(), link.ExpiresAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert magic link: token hash collision")
		}
		return unavailable("insert magic link", err)
	}
	return nil
}

func (r *MagicLinkRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.MagicLink, error) {
	query :=
		`UPDATE magic_links SET consumed_at = $2
		 WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
		 RETURNING email, pending_user_id, created_at, expires_at`

	var (
		link    = domain.MagicLink{TokenHash: tokenHash}
		pending sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, tokenHash, now.UTC()).
		Scan(&link.Email, &pending, &link.CreatedAt, &link.ExpiresAt)
	if err == nil {
		consumed := now.UTC()
		link.PendingUserID = pending.String
		link.CreatedAt = link.CreatedAt.UTC()
		link.ExpiresAt = link.ExpiresAt.UTC()
		link.ConsumedAt = &consumed
		return &link, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("consume magic link", err)
	}

	return nil, r.explainMiss(ctx, tokenHash)
}

// explainMiss tells a replayed link apart from an unknown or expired one.
func (r *MagicLinkRepository) explainMiss(ctx context.Context, tokenHash string) error {
	var consumedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT consumed_at FROM magic_links WHERE token_hash = $1`, tokenHash).Scan(&consumedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrInvalidToken
	case err != nil:
		return unavailable("consume magic link", err)
	case consumedAt.Valid:
		return domain.ErrAlreadyConsumed
	default:
		return domain.ErrInvalidToken
	}
}

// DeleteExpired removes links that expired before cutoff.
func (r *MagicLinkRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM magic_links WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, unavailable("delete expired magic links", err)
	}
	return res.RowsAffected()
}

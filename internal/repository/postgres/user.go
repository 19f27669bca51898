package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/refreshkeeper/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

const uniqueViolation = "23505"

const userColumns = `id, email, stored_key, server_key, salt_root, kdf, version, created_at, updated_at, deleted_at`

var refreshTokenColumns = []string{
	"value", "user_id", "position", "created_at", "expires_at", "created_by_ip",
	"revoked_at", "revoked_by_ip", "revoked_reason", "replaced_by",
}

// snapshotTx reads a user row and its tokens from a single snapshot.
var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`

	user, err := r.load(ctx, query, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`

	user, err := r.load(ctx, query, id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, err
}

func (r *UserRepository) FindByRefreshToken(ctx context.Context, value string) (model.User, error) {
	query := `SELECT ` + prefixed("u", userColumns) + `
			  FROM users u JOIN refresh_tokens t ON t.user_id = u.id
			  WHERE t.value = $1 AND u.deleted_at IS NULL`

	user, err := r.load(ctx, query, value)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to find user by refresh token: %w", err)
	}
	return user, err
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `INSERT INTO users (id, email, stored_key, server_key, salt_root, kdf, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)`

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			user.ID, user.Email, user.StoredKey, user.ServerKey, user.SaltRoot, kdfOrEmpty(user.KDF),
			user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return insertRefreshTokens(ctx, tx, user)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("%w: %v", model.ErrConflict, err)
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return r.GetByID(ctx, user.ID)
}

// Save replaces the user row and its token collection in one transaction.
// The update only applies while the stored version equals user.Version;
// otherwise model.ErrPersistenceConflict is returned and nothing changes.
func (r *UserRepository) Save(ctx context.Context, user model.User) error {
	query := `UPDATE users
			  SET email = $2, stored_key = $3, server_key = $4, salt_root = $5, kdf = $6,
			      updated_at = $7, version = version + 1
			  WHERE id = $1 AND version = $8 AND deleted_at IS NULL`

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query,
			user.ID, user.Email, user.StoredKey, user.ServerKey, user.SaltRoot, kdfOrEmpty(user.KDF),
			user.UpdatedAt, user.Version,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrStale(ctx, tx, user)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, user.ID); err != nil {
			return err
		}
		return insertRefreshTokens(ctx, tx, user)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrPersistenceConflict):
		return err
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", model.ErrConflict, err)
	default:
		return fmt.Errorf("failed to save user: %w", err)
	}
}

func (r *UserRepository) missingOrStale(ctx context.Context, tx pgx.Tx, user model.User) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, user.ID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return fmt.Errorf("%w: user %s is no longer at version %d", model.ErrPersistenceConflict, user.ID, user.Version)
}

func (r *UserRepository) load(ctx context.Context, query string, arg any) (model.User, error) {
	var user model.User

	err := pgx.BeginTxFunc(ctx, r.db, snapshotTx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, arg).Scan(
			&user.ID, &user.Email, &user.StoredKey, &user.ServerKey, &user.SaltRoot, &user.KDF,
			&user.Version, &user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
		)
		if err != nil {
			return err
		}

		user.RefreshTokens, err = selectRefreshTokens(ctx, tx, user.ID)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}

	return user, nil
}

func selectRefreshTokens(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]model.RefreshToken, error) {
	query := `SELECT value, created_at, expires_at, created_by_ip, revoked_at, revoked_by_ip, revoked_reason, replaced_by
			  FROM refresh_tokens WHERE user_id = $1 ORDER BY position`

	rows, err := tx.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RefreshToken, error) {
		var t model.RefreshToken
		err := row.Scan(
			&t.Value, &t.CreatedAt, &t.ExpiresAt, &t.CreatedByIP,
			&t.RevokedAt, &t.RevokedByIP, &t.RevokedReason, &t.ReplacedBy,
		)
		return t, err
	})
}

func insertRefreshTokens(ctx context.Context, tx pgx.Tx, user model.User) error {
	if len(user.RefreshTokens) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"refresh_tokens"},
		refreshTokenColumns,
		pgx.CopyFromRows(refreshTokenRows(user)),
	)
	return err
}

// refreshTokenRows lays tokens out in refreshTokenColumns order, keeping the
// collection order in the position column.
func refreshTokenRows(user model.User) [][]any {
	rows := make([][]any, 0, len(user.RefreshTokens))
	for i, t := range user.RefreshTokens {
		rows = append(rows, []any{
			t.Value, user.ID, i, t.CreatedAt, t.ExpiresAt, t.CreatedByIP,
			t.RevokedAt, t.RevokedByIP, t.RevokedReason, t.ReplacedBy,
		})
	}
	return rows
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func kdfOrEmpty(kdf []byte) []byte {
	if len(kdf) == 0 {
		return []byte("{}")
	}
	return kdf
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

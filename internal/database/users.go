package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shiftbook/internal/domain"
	"shiftbook/internal/models"
)

func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email) VALUES (?, ?)
              ON CONFLICT(id) DO UPDATE SET email = excluded.email`
	if _, err := db.ExecContext(ctx, query, user.ID, user.Email); err != nil {
		return domain.WrapStore("upsert user", fmt.Errorf("failed to create or update user: %w", err))
	}
	return nil
}

func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, email FROM users ORDER BY email`)
	if err != nil {
		return nil, domain.WrapStore("list users", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, domain.WrapStore("list users", err)
		}
		users = append(users, &u)
	}
	return users, domain.WrapStore("list users", rows.Err())
}

// GetRole returns RoleUser for users without a roles row.
func (db *DB) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := db.QueryRowContext(ctx, `SELECT role FROM roles WHERE user_id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoleUser, nil
	}
	if err != nil {
		return "", domain.WrapStore("get role", err)
	}
	return role, nil
}

// SetRole is used by self-hosted deployments to seed the roles table.
func (db *DB) SetRole(ctx context.Context, userID, role string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO roles (user_id, role) VALUES (?, ?) ON CONFLICT(user_id) DO UPDATE SET role = excluded.role`,
		userID, role)
	return domain.WrapStore("set role", err)
}

package repository

import (
	"context"
	"fmt"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
)

// OperatorSQLite stores the biomedical staff accounts that sign in to the API.
type OperatorSQLite struct {
	db DBTX
}

func NewOperatorSQLite(db DBTX) *OperatorSQLite { return &OperatorSQLite{db: db} }

var _ OperatorRepo = (*OperatorSQLite)(nil)

const operatorColumns = `id, username, password_hash, active, created_at`

const (
	insertOperatorSQL           = `INSERT INTO users (username, password_hash, active, created_at) VALUES (?, ?, ?, ?)`
	selectOperatorByUsernameSQL = `SELECT ` + operatorColumns + ` FROM users WHERE username = ?`
	selectOperatorByIDSQL       = `SELECT ` + operatorColumns + ` FROM users WHERE id = ?`
	setOperatorActiveSQL        = `UPDATE users SET active = ? WHERE username = ?`
)

// Create inserts u and returns the assigned id. A taken username is ErrConflict.
func (r *OperatorSQLite) Create(ctx context.Context, u models.User) (int, error) {
	res, err := r.db.ExecContext(ctx, insertOperatorSQL, u.Username, u.PasswordHash, u.Active, u.CreatedAt.UTC())
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("insert operator %q", u.Username), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("operator %q id: %w", u.Username, err)
	}
	return int(id), nil
}

func (r *OperatorSQLite) GetByUsername(ctx context.Context, username string) (models.User, error) {
	u, err := scanOperator(r.db.QueryRowContext(ctx, selectOperatorByUsernameSQL, username))
	if err != nil {
		return models.User{}, wrapErr(fmt.Sprintf("get operator %q", username), err)
	}
	return u, nil
}

func (r *OperatorSQLite) GetByID(ctx context.Context, id int) (models.User, error) {
	u, err := scanOperator(r.db.QueryRowContext(ctx, selectOperatorByIDSQL, id))
	if err != nil {
		return models.User{}, wrapErr(fmt.Sprintf("get operator %d", id), err)
	}
	return u, nil
}

// SetActive enables or disables sign-in for username. Unknown names are ErrNotFound.
func (r *OperatorSQLite) SetActive(ctx context.Context, username string, active bool) error {
	res, err := r.db.ExecContext(ctx, setOperatorActiveSQL, active, username)
	return affectedOne(fmt.Sprintf("set operator %q active=%t", username, active), res, err)
}

func scanOperator(s rowScanner) (models.User, error) {
	var u models.User
	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
		return models.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

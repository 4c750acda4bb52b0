package apitest

import (
	"context"
	"database/sql"
	"time"

	"github.com/chepyr/go-workboard/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User, passwordHash string) error {
	query := `INSERT INTO users (id, username, email, first_name, last_name, password_hash, created_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		string(u.ID), u.Username, u.Email, u.FirstName, u.LastName, passwordHash, time.Now().UTC())
	return err
}

// GetByUsername returns the user and its bcrypt password hash.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, string, error) {
	query := `SELECT id, username, email, first_name, last_name, password_hash FROM users WHERE username = $1`
	u := &models.User{}
	var hash string
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &hash,
	)
	if err != nil {
		return nil, "", err
	}
	return u, hash, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, email, first_name, last_name FROM users WHERE id = $1`
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, first_name, last_name FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

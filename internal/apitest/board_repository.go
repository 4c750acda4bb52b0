package apitest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chepyr/go-workboard/internal/models"
)

type BoardRepository struct {
	db *sql.DB
}

func NewBoardRepository(db *sql.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

const boardColumns = `b.id, b.name, b.description, b.created_at, b.updated_at,
 o.id, o.username, o.email, o.first_name, o.last_name`

const boardFrom = ` FROM boards b JOIN users o ON o.id = b.owner_id`

func scanBoard(row interface{ Scan(...any) error }) (*models.Board, error) {
	b := &models.Board{Owner: &models.User{}}
	err := row.Scan(
		&b.ID, &b.Name, &b.Description, &b.CreatedAt, &b.UpdatedAt,
		&b.Owner.ID, &b.Owner.Username, &b.Owner.Email, &b.Owner.FirstName, &b.Owner.LastName,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BoardRepository) Create(ctx context.Context, b *models.Board) error {
	if b.Owner == nil {
		return fmt.Errorf("board %s has no owner", b.ID)
	}
	query := `INSERT INTO boards (id, owner_id, name, description, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query,
		string(b.ID), string(b.Owner.ID), b.Name, b.Description, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *BoardRepository) GetByID(ctx context.Context, id string) (*models.Board, error) {
	return scanBoard(r.db.QueryRowContext(ctx, `SELECT `+boardColumns+boardFrom+` WHERE b.id = $1`, id))
}

func (r *BoardRepository) Update(ctx context.Context, b *models.Board) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE boards SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		b.Name, b.Description, b.UpdatedAt, string(b.ID))
	if err != nil {
		return err
	}
	return mustAffect(res, "board", b.ID)
}

// Delete removes the board and its tasks.
func (r *BoardRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE board_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := mustAffect(res, "board", models.ID(id)); err != nil {
		return err
	}
	return tx.Commit()
}

// ListVisible returns the boards a user owns or holds assigned tasks on.
func (r *BoardRepository) ListVisible(ctx context.Context, userID string) ([]models.Board, error) {
	return r.list(ctx, `SELECT `+boardColumns+boardFrom+`
	 WHERE b.owner_id = $1 OR b.id IN (SELECT board_id FROM tasks WHERE assignee_id = $1)
	 ORDER BY b.created_at, b.rowid`, userID)
}

// ListAssigned returns only the boards holding tasks assigned to the user.
func (r *BoardRepository) ListAssigned(ctx context.Context, userID string) ([]models.Board, error) {
	return r.list(ctx, `SELECT `+boardColumns+boardFrom+`
	 WHERE b.id IN (SELECT board_id FROM tasks WHERE assignee_id = $1)
	 ORDER BY b.created_at, b.rowid`, userID)
}

func (r *BoardRepository) list(ctx context.Context, query string, args ...any) ([]models.Board, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	boards := []models.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, *b)
	}
	return boards, rows.Err()
}

func mustAffect(res sql.Result, kind string, id models.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s with id %s does not exist: %w", kind, id, sql.ErrNoRows)
	}
	return nil
}

package apitest

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/chepyr/go-workboard/internal/models"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskSelect = `SELECT t.id, t.board_id, t.title, t.description, t.status, t.created_at, t.updated_at,
 a.id, a.username, a.email, a.first_name, a.last_name,
 c.id, c.username, c.email, c.first_name, c.last_name
 FROM tasks t
 LEFT JOIN users a ON a.id = t.assignee_id
 LEFT JOIN users c ON c.id = t.created_by`

type nullUser struct {
	id, username, email, first, last sql.NullString
}

func (n nullUser) user() *models.User {
	if !n.id.Valid {
		return nil
	}
	return &models.User{
		ID:        models.ID(n.id.String),
		Username:  n.username.String,
		Email:     n.email.String,
		FirstName: n.first.String,
		LastName:  n.last.String,
	}
}

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	t := &models.Task{}
	var a, c nullUser
	err := row.Scan(
		&t.ID, &t.BoardID, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt,
		&a.id, &a.username, &a.email, &a.first, &a.last,
		&c.id, &c.username, &c.email, &c.first, &c.last,
	)
	if err != nil {
		return nil, err
	}
	t.Assignee = a.user()
	t.CreatedBy = c.user()
	return t, nil
}

func userID(u *models.User) sql.NullString {
	if u == nil {
		return sql.NullString{}
	}
	return nullable(string(u.ID))
}

func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	query := `INSERT INTO tasks (id, board_id, title, description, status, assignee_id, created_by, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		string(t.ID), string(t.BoardID), t.Title, t.Description, string(t.Status),
		userID(t.Assignee), userID(t.CreatedBy), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	return scanTask(r.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1`, id))
}

func (r *TaskRepository) Update(ctx context.Context, t *models.Task) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, assignee_id = $4, updated_at = $5 WHERE id = $6`,
		t.Title, t.Description, string(t.Status), userID(t.Assignee), t.UpdatedAt, string(t.ID))
	if err != nil {
		return err
	}
	return mustAffect(res, "task", t.ID)
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "task", models.ID(id))
}

func (r *TaskRepository) ListByBoardID(ctx context.Context, boardID string) ([]models.Task, error) {
	return r.list(ctx, taskSelect+` WHERE t.board_id = $1 ORDER BY t.rowid`, boardID)
}

// TaskFilter narrows ListVisible. Empty fields match everything.
type TaskFilter struct {
	BoardID    string
	AssigneeID string
}

// ListVisible returns tasks on boards the user owns or assigned to the user.
func (r *TaskRepository) ListVisible(ctx context.Context, userID string, f TaskFilter) ([]models.Task, error) {
	where := []string{`(t.board_id IN (SELECT id FROM boards WHERE owner_id = $1) OR t.assignee_id = $1)`}
	args := []any{userID}
	if f.BoardID != "" {
		args = append(args, f.BoardID)
		where = append(where, `t.board_id = $2`)
	}
	if f.AssigneeID != "" {
		args = append(args, f.AssigneeID)
		where = append(where, `t.assignee_id = $`+strconv.Itoa(len(args)))
	}
	return r.list(ctx, taskSelect+` WHERE `+strings.Join(where, ` AND `)+` ORDER BY t.rowid`, args...)
}

func (r *TaskRepository) ListByAssignee(ctx context.Context, userID string) ([]models.Task, error) {
	return r.list(ctx, taskSelect+` WHERE t.assignee_id = $1 ORDER BY t.rowid`, userID)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

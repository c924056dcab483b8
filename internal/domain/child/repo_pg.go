package child

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloomscreen/bloomscreen/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const childCols = `id, caregiver_id, first_name, last_name, date_of_birth, gender,
	notes, created_at, updated_at, archived_at`

func scanChild(row pgx.Row) (*Child, error) {
	var c Child
	err := row.Scan(&c.ID, &c.CaregiverID, &c.FirstName, &c.LastName, &c.DateOfBirth, &c.Gender,
		&c.Notes, &c.CreatedAt, &c.UpdatedAt, &c.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Child) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO children (id, caregiver_id, first_name, last_name, date_of_birth, gender, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.CaregiverID, c.FirstName, c.LastName, c.DateOfBirth, c.Gender, c.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Child, error) {
	return scanChild(r.conn(ctx).QueryRow(ctx,
		`SELECT `+childCols+` FROM children WHERE id = $1 AND archived_at IS NULL`, id))
}

func (r *repoPG) Update(ctx context.Context, c *Child) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE children SET first_name=$2, last_name=$3, gender=$4, notes=$5, updated_at=NOW()
		WHERE id = $1 AND archived_at IS NULL`,
		c.ID, c.FirstName, c.LastName, c.Gender, c.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE children SET archived_at = NOW() WHERE id = $1 AND archived_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByCaregiver(ctx context.Context, caregiverID uuid.UUID, limit, offset int) ([]*Child, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM children WHERE caregiver_id = $1 AND archived_at IS NULL`, caregiverID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+childCols+` FROM children WHERE caregiver_id = $1 AND archived_at IS NULL
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, caregiverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan child: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

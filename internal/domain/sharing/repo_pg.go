package sharing

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Share Repository ===========

type shareRepoPG struct{ pool *pgxpool.Pool }

func NewShareRepoPG(pool *pgxpool.Pool) ShareRepository {
	return &shareRepoPG{pool: pool}
}

const shareCols = `id, assessment_id, created_by, token, access, recipient_email, created_at, revoked_at`

func scanShare(row pgx.Row) (*ShareGrant, error) {
	var g ShareGrant
	err := row.Scan(&g.ID, &g.AssessmentID, &g.CreatedBy, &g.Token, &g.Access,
		&g.RecipientEmail, &g.CreatedAt, &g.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &g, err
}

func (r *shareRepoPG) Create(ctx context.Context, g *ShareGrant) error {
	g.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO share_grants (id, assessment_id, created_by, token, access, recipient_email)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		g.ID, g.AssessmentID, g.CreatedBy, g.Token, g.Access, g.RecipientEmail)
	return err
}

func (r *shareRepoPG) GetByToken(ctx context.Context, token string) (*ShareGrant, error) {
	return scanShare(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+shareCols+` FROM share_grants WHERE token = $1`, token))
}

func (r *shareRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ShareGrant, error) {
	return scanShare(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+shareCols+` FROM share_grants WHERE id = $1`, id))
}

func (r *shareRepoPG) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE share_grants SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *shareRepoPG) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*ShareGrant, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+shareCols+` FROM share_grants WHERE assessment_id = $1 ORDER BY created_at DESC`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ShareGrant
	for rows.Next() {
		g, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// =========== Annotation Repository ===========

type annotationRepoPG struct{ pool *pgxpool.Pool }

func NewAnnotationRepoPG(pool *pgxpool.Pool) AnnotationRepository {
	return &annotationRepoPG{pool: pool}
}

const annotationCols = `id, share_id, domain_id, author_name, body, created_at`

func (r *annotationRepoPG) Create(ctx context.Context, a *Annotation) error {
	a.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO annotations (id, share_id, domain_id, author_name, body)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.ShareID, a.DomainID, a.AuthorName, a.Body)
	return err
}

func (r *annotationRepoPG) listQuery(ctx context.Context, sql string, arg any) ([]*Annotation, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.ID, &a.ShareID, &a.DomainID, &a.AuthorName, &a.Body, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *annotationRepoPG) ListByShare(ctx context.Context, shareID uuid.UUID) ([]*Annotation, error) {
	return r.listQuery(ctx,
		`SELECT `+annotationCols+` FROM annotations WHERE share_id = $1 ORDER BY created_at`, shareID)
}

func (r *annotationRepoPG) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*Annotation, error) {
	return r.listQuery(ctx, `
		SELECT a.id, a.share_id, a.domain_id, a.author_name, a.body, a.created_at
		FROM annotations a
		JOIN share_grants g ON g.id = a.share_id
		WHERE g.assessment_id = $1
		ORDER BY a.created_at`, assessmentID)
}

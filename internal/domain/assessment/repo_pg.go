package assessment

import (
	"context"
	"encoding/json"
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

// =========== Assessment Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const assessmentCols = `id, child_id, caregiver_id, age_group, catalog_version, status,
	tier1_completed, tier2_completed, domain_scores, flagged_domains, overall_score,
	created_at, updated_at, completed_at, expires_at`

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	var scores []byte
	err := row.Scan(&a.ID, &a.ChildID, &a.CaregiverID, &a.AgeGroup, &a.CatalogVersion, &a.Status,
		&a.Tier1Completed, &a.Tier2Completed, &scores, &a.FlaggedDomains, &a.OverallScore,
		&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt, &a.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &a.DomainScores); err != nil {
			return nil, fmt.Errorf("decode domain scores: %w", err)
		}
	}
	return &a, nil
}

func encodeScores(a *Assessment) ([]byte, error) {
	if len(a.DomainScores) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(a.DomainScores)
}

func (r *repoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	scores, err := encodeScores(a)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO assessments (id, child_id, caregiver_id, age_group, catalog_version, status,
			tier1_completed, tier2_completed, domain_scores, flagged_domains, overall_score, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.ChildID, a.CaregiverID, a.AgeGroup, a.CatalogVersion, a.Status,
		a.Tier1Completed, a.Tier2Completed, scores, a.FlaggedDomains, a.OverallScore, a.ExpiresAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return scanAssessment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+assessmentCols+` FROM assessments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Assessment) error {
	scores, err := encodeScores(a)
	if err != nil {
		return err
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessments SET status=$2, tier1_completed=$3, tier2_completed=$4,
			domain_scores=$5, flagged_domains=$6, overall_score=$7, completed_at=$8,
			updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.Tier1Completed, a.Tier2Completed,
		scores, a.FlaggedDomains, a.OverallScore, a.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByChild(ctx context.Context, childID, caregiverID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	var owner *uuid.UUID
	if caregiverID != uuid.Nil {
		owner = &caregiverID
	}
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM assessments
		 WHERE child_id = $1 AND ($2::uuid IS NULL OR caregiver_id = $2)`,
		childID, owner).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx,
		`SELECT `+assessmentCols+` FROM assessments
		 WHERE child_id = $1 AND ($2::uuid IS NULL OR caregiver_id = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, childID, owner, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// =========== Response Repository ===========

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepoPG{pool: pool}
}

func (r *responseRepoPG) CreateBatch(ctx context.Context, responses []*Response) error {
	q := conn(ctx, r.pool)
	for _, resp := range responses {
		resp.ID = uuid.New()
		_, err := q.Exec(ctx, `
			INSERT INTO assessment_responses (id, assessment_id, tier, domain_id, question_id, answer)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			resp.ID, resp.AssessmentID, resp.Tier, resp.DomainID, resp.QuestionID, resp.Answer)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: tier %d already has a response for question %s",
					ErrConflict, resp.Tier, resp.QuestionID)
			}
			return err
		}
	}
	return nil
}

func (r *responseRepoPG) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*Response, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, assessment_id, tier, domain_id, question_id, answer, created_at
		FROM assessment_responses WHERE assessment_id = $1
		ORDER BY tier, domain_id, question_id`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Response
	for rows.Next() {
		var resp Response
		if err := rows.Scan(&resp.ID, &resp.AssessmentID, &resp.Tier, &resp.DomainID,
			&resp.QuestionID, &resp.Answer, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, &resp)
	}
	return out, rows.Err()
}

func (r *responseRepoPG) DeleteByAssessment(ctx context.Context, assessmentID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM assessment_responses WHERE assessment_id = $1`, assessmentID)
	return err
}

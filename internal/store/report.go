package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/guidopia/apiserver/types"
)

// ReportRepository handles persistence for career reports.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, report types.Report) (types.Report, error) {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	sections, err := json.Marshal(report.Sections)
	if err != nil {
		return types.Report{}, err
	}

	const query = `
		INSERT INTO reports (id, user_id, model, raw_text, sections, tokens_used, pdf_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		report.ID,
		report.UserID,
		report.Model,
		report.RawText,
		sections,
		report.TokensUsed,
		report.PDFKey,
		report.CreatedAt,
	); err != nil {
		return types.Report{}, translateError(err)
	}
	return report, nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (types.Report, error) {
	const query = `
		SELECT id, user_id, model, raw_text, sections, tokens_used, pdf_key, created_at
		FROM reports
		WHERE id = $1`
	return scanReport(r.db.QueryRowContext(ctx, query, id))
}

// LatestByUser returns the most recently generated report for the user.
func (r *ReportRepository) LatestByUser(ctx context.Context, userID int) (types.Report, error) {
	const query = `
		SELECT id, user_id, model, raw_text, sections, tokens_used, pdf_key, created_at
		FROM reports
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return scanReport(r.db.QueryRowContext(ctx, query, userID))
}

// SetPDFKey records the object storage key of the exported PDF.
func (r *ReportRepository) SetPDFKey(ctx context.Context, id, pdfKey string) error {
	const query = `UPDATE reports SET pdf_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, pdfKey, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM reports WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(row rowScanner) (types.Report, error) {
	var report types.Report
	var sections []byte
	err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.Model,
		&report.RawText,
		&sections,
		&report.TokensUsed,
		&report.PDFKey,
		&report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &report.Sections); err != nil {
			return types.Report{}, err
		}
	}
	return report, nil
}

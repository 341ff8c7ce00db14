package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-inbox/internal/domain"
)

type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

func (r *ReportRepo) Create(ctx context.Context, report *domain.ConversationReport) error {
	query := `
		INSERT INTO conversation_reports (id, conversation_id, reporter_actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query,
		report.ID, report.ConversationID, report.ReporterID, report.Reason, report.CreatedAt,
	)
	return wrapErr("create report", err)
}

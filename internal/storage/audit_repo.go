package storage

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"litreview/internal/gateway"
)

// CallAuditRepo persists one row per resolved gateway call. Insert failures
// are logged and swallowed: an audit outage must never fail the pipeline.
type CallAuditRepo struct {
	db      *DB
	project string
	log     *log.Logger
}

func NewCallAuditRepo(db *DB, project string, logger *log.Logger) *CallAuditRepo {
	if logger == nil {
		logger = log.Default()
	}
	return &CallAuditRepo{db: db, project: project, log: logger}
}

// RecordCall implements gateway.AuditSink.
func (r *CallAuditRepo) RecordCall(ctx context.Context, rec gateway.CallRecord) {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, project, model, api_base, status, error_type, attempts, elapsed_ms, called_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, $9)`,
		uuid.NewString(), r.project, rec.Model, rec.APIBase, rec.Status, rec.ErrorType,
		rec.Attempts, rec.Elapsed.Milliseconds(), time.Now().UTC())
	if err != nil {
		r.log.Printf("storage: audit insert failed: %v", err)
	}
}

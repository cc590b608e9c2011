package storage

import (
	"context"
	"fmt"
)

// GenerationCallRecord is one row of the generation audit trail: which
// provider answered which operation for which paper, and how it ended.
type GenerationCallRecord struct {
	CallID       string
	Operation    string
	PaperID      string
	ProviderName string
	Model        string
	RequestID    string
	Status       string
	ErrorType    string
}

type GenerationAuditRepo struct {
	db *DB
}

func NewGenerationAuditRepo(db *DB) *GenerationAuditRepo {
	return &GenerationAuditRepo{db: db}
}

func (r *GenerationAuditRepo) Insert(ctx context.Context, rec GenerationCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO generation_calls(call_id, operation, paper_id, provider_name, model, request_id, status, error_type)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,''), $4, $5, $6, $7, NULLIF($8,''))`,
		rec.CallID, rec.Operation, rec.PaperID, rec.ProviderName, rec.Model, rec.RequestID, rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert generation call: %w", err)
	}
	return nil
}

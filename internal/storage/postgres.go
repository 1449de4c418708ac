package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

const (
	schemaLockKey     = int64(2026101701)
	defaultTxDeadline = 10 * time.Second
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres is the Store backed by PostgreSQL through the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
	q  querier
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

// OpenDB opens and pings a pgx-backed *sql.DB.
func OpenDB(dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	storage_pointer TEXT NOT NULL,
	state TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_customer ON documents(customer_id, uploaded_at);

CREATE TABLE IF NOT EXISTS extraction_outcomes (
	document_id TEXT PRIMARY KEY REFERENCES documents(id),
	document_type TEXT NOT NULL,
	fallback_mode BOOLEAN NOT NULL DEFAULT FALSE,
	extraction_success BOOLEAN NOT NULL,
	payload JSONB NOT NULL,
	produced_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS verification_records (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	status TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	reasons JSONB NOT NULL DEFAULT '[]'::jsonb,
	fallback_mode BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_document ON verification_records(document_id, seq);
CREATE INDEX IF NOT EXISTS idx_verification_customer ON verification_records(customer_id, seq);

CREATE TABLE IF NOT EXISTS kyc_status (
	customer_id TEXT PRIMARY KEY,
	documents JSONB NOT NULL DEFAULT '{}'::jsonb,
	completion DOUBLE PRECISION NOT NULL,
	state TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables if they are missing. Concurrent callers are
// serialized with an advisory lock.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// GetDocument implements Store.
func (p *Postgres) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	row := p.q.QueryRowContext(ctx, `
SELECT id, customer_id, document_type, storage_pointer, state, uploaded_at
FROM documents
WHERE id = $1
`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, notFound("document", id)
		}
		return domain.Document{}, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

// ListCustomerDocuments implements Store.
func (p *Postgres) ListCustomerDocuments(ctx context.Context, customerID string) ([]domain.Document, error) {
	rows, err := p.q.QueryContext(ctx, `
SELECT id, customer_id, document_type, storage_pointer, state, uploaded_at
FROM documents
WHERE customer_id = $1
ORDER BY uploaded_at, id
`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (domain.Document, error) {
	var (
		doc         domain.Document
		docType, st string
	)
	if err := s.Scan(&doc.ID, &doc.CustomerID, &docType, &doc.StoragePointer, &st, &doc.UploadedAt); err != nil {
		return domain.Document{}, err
	}
	doc.Type = domain.DocumentType(docType)
	doc.State = domain.DocumentState(st)
	return doc, nil
}

// SaveDocument implements Store.
func (p *Postgres) SaveDocument(ctx context.Context, doc domain.Document) error {
	_, err := p.q.ExecContext(ctx, `
INSERT INTO documents (id, customer_id, document_type, storage_pointer, state, uploaded_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, storage_pointer = EXCLUDED.storage_pointer
`, doc.ID, doc.CustomerID, string(doc.Type), doc.StoragePointer, string(doc.State), doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// UpdateDocumentState implements Store.
func (p *Postgres) UpdateDocumentState(ctx context.Context, id string, state domain.DocumentState) error {
	res, err := p.q.ExecContext(ctx, `
UPDATE documents
SET state = $2
WHERE id = $1
`, id, string(state))
	if err != nil {
		return fmt.Errorf("update document state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("document rows affected: %w", err)
	}
	if n == 0 {
		return notFound("document", id)
	}
	return nil
}

// SaveExtraction implements Store.
func (p *Postgres) SaveExtraction(ctx context.Context, outcome domain.ExtractionOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal extraction: %w", err)
	}
	_, err = p.q.ExecContext(ctx, `
INSERT INTO extraction_outcomes (document_id, document_type, fallback_mode, extraction_success, payload, produced_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (document_id) DO UPDATE SET
	document_type = EXCLUDED.document_type,
	fallback_mode = EXCLUDED.fallback_mode,
	extraction_success = EXCLUDED.extraction_success,
	payload = EXCLUDED.payload,
	produced_at = EXCLUDED.produced_at
`, outcome.DocumentID, string(outcome.DocumentType), outcome.FallbackMode, outcome.ExtractionSuccess,
		payload, outcome.ProducedAt)
	if err != nil {
		return fmt.Errorf("upsert extraction: %w", err)
	}
	return nil
}

// LatestExtraction implements Store.
func (p *Postgres) LatestExtraction(ctx context.Context, documentID string) (domain.ExtractionOutcome, error) {
	var raw []byte
	err := p.q.QueryRowContext(ctx, `
SELECT payload
FROM extraction_outcomes
WHERE document_id = $1
`, documentID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ExtractionOutcome{}, notFound("extraction", documentID)
		}
		return domain.ExtractionOutcome{}, fmt.Errorf("scan extraction: %w", err)
	}
	var out domain.ExtractionOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.ExtractionOutcome{}, fmt.Errorf("unmarshal extraction: %w", err)
	}
	return out, nil
}

// AppendVerification implements Store.
func (p *Postgres) AppendVerification(ctx context.Context, rec domain.VerificationRecord) error {
	reasons := rec.Reasons
	if reasons == nil {
		reasons = []domain.Reason{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	_, err = p.q.ExecContext(ctx, `
INSERT INTO verification_records (
	id, document_id, customer_id, document_type, status, score, reasons, fallback_mode, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, rec.ID, rec.DocumentID, rec.CustomerID, string(rec.DocumentType), string(rec.Status), rec.Score,
		reasonsJSON, rec.FallbackMode, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

const verificationColumns = `id, document_id, customer_id, document_type, status, score, reasons, fallback_mode, created_at`

// ListVerifications implements Store.
func (p *Postgres) ListVerifications(ctx context.Context, documentID string) ([]domain.VerificationRecord, error) {
	return p.listVerifications(ctx, `SELECT `+verificationColumns+`
FROM verification_records
WHERE document_id = $1
ORDER BY seq
`, documentID)
}

// ListCustomerVerifications implements Store.
func (p *Postgres) ListCustomerVerifications(ctx context.Context, customerID string) ([]domain.VerificationRecord, error) {
	return p.listVerifications(ctx, `SELECT `+verificationColumns+`
FROM verification_records
WHERE customer_id = $1
ORDER BY seq
`, customerID)
}

func (p *Postgres) listVerifications(ctx context.Context, query, arg string) ([]domain.VerificationRecord, error) {
	rows, err := p.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []domain.VerificationRecord
	for rows.Next() {
		var (
			rec             domain.VerificationRecord
			docType, status string
			reasonsRaw      []byte
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.CustomerID, &docType, &status, &rec.Score,
			&reasonsRaw, &rec.FallbackMode, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		if err := json.Unmarshal(reasonsRaw, &rec.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal reasons: %w", err)
		}
		rec.DocumentType = domain.DocumentType(docType)
		rec.Status = domain.VerificationStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetKycStatus implements Store.
func (p *Postgres) GetKycStatus(ctx context.Context, customerID string) (domain.KycStatus, error) {
	var (
		st      domain.KycStatus
		docsRaw []byte
		state   string
	)
	err := p.q.QueryRowContext(ctx, `
SELECT customer_id, documents, completion, state, updated_at
FROM kyc_status
WHERE customer_id = $1
`, customerID).Scan(&st.CustomerID, &docsRaw, &st.Completion, &state, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.KycStatus{}, notFound("kyc status", customerID)
		}
		return domain.KycStatus{}, fmt.Errorf("scan kyc status: %w", err)
	}
	if err := json.Unmarshal(docsRaw, &st.Documents); err != nil {
		return domain.KycStatus{}, fmt.Errorf("unmarshal kyc documents: %w", err)
	}
	st.State = domain.KycState(state)
	return st, nil
}

// UpsertKycStatus implements Store.
func (p *Postgres) UpsertKycStatus(ctx context.Context, status domain.KycStatus) error {
	docs := status.Documents
	if docs == nil {
		docs = map[domain.DocumentType]domain.KycState{}
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal kyc documents: %w", err)
	}
	_, err = p.q.ExecContext(ctx, `
INSERT INTO kyc_status (customer_id, documents, completion, state, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (customer_id) DO UPDATE SET
	documents = EXCLUDED.documents,
	completion = EXCLUDED.completion,
	state = EXCLUDED.state,
	updated_at = EXCLUDED.updated_at
`, status.CustomerID, docsJSON, status.Completion, string(status.State), status.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert kyc status: %w", err)
	}
	return nil
}

// LockCustomer implements Store with a transaction-scoped advisory lock. Outside
// a transaction the lock would be released immediately, so it is a no-op there.
func (p *Postgres) LockCustomer(ctx context.Context, customerID string) error {
	if _, ok := p.q.(*sql.Tx); !ok {
		return nil
	}
	if _, err := p.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, customerID); err != nil {
		return fmt.Errorf("lock customer: %w", err)
	}
	return nil
}

// RunInTx implements Store. Without a caller deadline the transaction gets
// defaultTxDeadline.
func (p *Postgres) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	if _, nested := p.q.(*sql.Tx); nested {
		return fn(p)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxDeadline)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Postgres{db: p.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	if _, inTx := p.q.(*sql.Tx); inTx || p.db == nil {
		return nil
	}
	return p.db.Close()
}

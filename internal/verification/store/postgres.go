package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mobirides/internal/verification/metrics"
	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
	"mobirides/pkg/platform/sentinel"
	txcontext "mobirides/pkg/platform/tx"
)

const selectColumns = `
	user_id, role, overall_status, current_step, personal_info_status,
	full_name, date_of_birth, national_id,
	address_street, address_city, address_country,
	document_status, document_kinds::text, selfie_status,
	phone_number, phone_verified, phone_verified_at,
	rejection_reason, submitted_at, reviewed_at, reviewed_by,
	created_at, updated_at`

// PostgresStore persists verification records in the verifications table.
type PostgresStore struct {
	db      *sql.DB
	tx      *txcontext.Runner
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type PostgresOption func(*PostgresStore)

func WithPostgresMetrics(m *metrics.Metrics) PostgresOption {
	return func(s *PostgresStore) {
		s.metrics = m
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:     db,
		tx:     txcontext.NewRunner(db),
		tracer: otel.Tracer("mobirides/verification/store"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) conn(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, userID id.UserID) (*models.VerificationData, error) {
	ctx, done := s.observe(ctx, "get", userID)
	defer done()

	query := `SELECT ` + selectColumns + ` FROM verifications WHERE user_id = $1`
	record, err := scanRecord(s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return record, nil
}

// Create inserts a new record. A concurrent create for the same user yields
// sentinel.ErrConflict so the caller can re-read the winner.
func (s *PostgresStore) Create(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error) {
	ctx, done := s.observe(ctx, "create", data.UserID)
	defer done()

	query := `
		INSERT INTO verifications (
			user_id, role, overall_status, current_step, personal_info_status,
			full_name, date_of_birth, national_id,
			address_street, address_city, address_country,
			document_status, document_kinds, selfie_status,
			phone_number, phone_verified, phone_verified_at,
			rejection_reason, submitted_at, reviewed_at, reviewed_by,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::text[], $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + selectColumns
	record, err := scanRecord(s.conn(ctx).QueryRowContext(ctx, query, writeArgs(data)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("create verification: %w", err)
	}
	return record, nil
}

// Upsert writes every mutable column. created_at keeps its original value.
func (s *PostgresStore) Upsert(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error) {
	ctx, done := s.observe(ctx, "upsert", data.UserID)
	defer done()

	record, err := scanRecord(s.conn(ctx).QueryRowContext(ctx, upsertQuery, writeArgs(data)...))
	if err != nil {
		return nil, fmt.Errorf("upsert verification: %w", err)
	}
	return record, nil
}

const upsertQuery = `
	INSERT INTO verifications (
		user_id, role, overall_status, current_step, personal_info_status,
		full_name, date_of_birth, national_id,
		address_street, address_city, address_country,
		document_status, document_kinds, selfie_status,
		phone_number, phone_verified, phone_verified_at,
		rejection_reason, submitted_at, reviewed_at, reviewed_by,
		created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::text[], $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23)
	ON CONFLICT (user_id) DO UPDATE SET
		role = EXCLUDED.role,
		overall_status = EXCLUDED.overall_status,
		current_step = EXCLUDED.current_step,
		personal_info_status = EXCLUDED.personal_info_status,
		full_name = EXCLUDED.full_name,
		date_of_birth = EXCLUDED.date_of_birth,
		national_id = EXCLUDED.national_id,
		address_street = EXCLUDED.address_street,
		address_city = EXCLUDED.address_city,
		address_country = EXCLUDED.address_country,
		document_status = EXCLUDED.document_status,
		document_kinds = EXCLUDED.document_kinds,
		selfie_status = EXCLUDED.selfie_status,
		phone_number = EXCLUDED.phone_number,
		phone_verified = EXCLUDED.phone_verified,
		phone_verified_at = EXCLUDED.phone_verified_at,
		rejection_reason = EXCLUDED.rejection_reason,
		submitted_at = EXCLUDED.submitted_at,
		reviewed_at = EXCLUDED.reviewed_at,
		reviewed_by = EXCLUDED.reviewed_by,
		updated_at = EXCLUDED.updated_at
	RETURNING ` + selectColumns

// Execute locks the row with SELECT ... FOR UPDATE, validates, mutates and
// writes back inside one transaction. An outer transaction on ctx is joined
// so callers can commit audit records atomically with the change.
func (s *PostgresStore) Execute(ctx context.Context, userID id.UserID, validate func(*models.VerificationData) error, mutate func(*models.VerificationData)) (*models.VerificationData, error) {
	ctx, done := s.observe(ctx, "execute", userID)
	defer done()

	var result *models.VerificationData
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		conn := s.conn(ctx)
		query := `SELECT ` + selectColumns + ` FROM verifications WHERE user_id = $1 FOR UPDATE`
		record, err := scanRecord(conn.QueryRowContext(ctx, query, uuid.UUID(userID)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock verification: %w", err)
		}
		if err := validate(record); err != nil {
			return err
		}
		mutate(record)
		result, err = scanRecord(conn.QueryRowContext(ctx, upsertQuery, writeArgs(record)...))
		if err != nil {
			return fmt.Errorf("update verification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListByStatus returns matching records, oldest submission first.
func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.VerificationData, error) {
	ctx, done := s.observe(ctx, "list_by_status", id.UserID{})
	defer done()

	query := `SELECT ` + selectColumns + `
		FROM verifications
		WHERE overall_status = $1
		ORDER BY COALESCE(submitted_at, created_at) ASC`
	rows, err := s.conn(ctx).QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.VerificationData
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) observe(ctx context.Context, operation string, userID id.UserID) (context.Context, func()) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "verification.store."+operation)
	if !userID.IsNil() {
		span.SetAttributes(attribute.String("user_id", userID.String()))
	}
	return ctx, func() {
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveStore(operation, start)
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.VerificationData, error) {
	var (
		record      models.VerificationData
		userID      uuid.UUID
		role        string
		status      string
		step        string
		personal    string
		docStatus   string
		kinds       []string
		selfie      string
		verifiedAt  sql.NullTime
		submittedAt sql.NullTime
		reviewedAt  sql.NullTime
		reviewedBy  uuid.NullUUID
	)
	err := row.Scan(
		&userID, &role, &status, &step, &personal,
		&record.PersonalInfo.FullName, &record.PersonalInfo.DateOfBirth, &record.PersonalInfo.NationalID,
		&record.PersonalInfo.Address.Street, &record.PersonalInfo.Address.City, &record.PersonalInfo.Address.Country,
		&docStatus, pq.Array(&kinds), &selfie,
		&record.Phone.PhoneNumber, &record.Phone.Verified, &verifiedAt,
		&record.RejectionReason, &submittedAt, &reviewedAt, &reviewedBy,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.UserID = id.UserID(userID)
	record.Role = id.Role(role)
	record.OverallStatus = models.Status(status)
	record.CurrentStep = models.Step(step)
	record.PersonalInfoStatus = models.SubStatus(personal)
	record.Documents.Status = models.SubStatus(docStatus)
	for _, k := range kinds {
		record.Documents.Kinds = append(record.Documents.Kinds, models.DocumentKind(k))
	}
	record.SelfieStatus = models.SubStatus(selfie)
	record.Phone.VerifiedAt = timePtr(verifiedAt)
	record.SubmittedAt = timePtr(submittedAt)
	record.ReviewedAt = timePtr(reviewedAt)
	if reviewedBy.Valid {
		reviewer := id.UserID(reviewedBy.UUID)
		record.ReviewedBy = &reviewer
	}
	return models.Normalize(&record), nil
}

func writeArgs(v *models.VerificationData) []any {
	kinds := make([]string, len(v.Documents.Kinds))
	for i, k := range v.Documents.Kinds {
		kinds[i] = string(k)
	}
	var reviewedBy uuid.NullUUID
	if v.ReviewedBy != nil {
		reviewedBy = uuid.NullUUID{UUID: uuid.UUID(*v.ReviewedBy), Valid: true}
	}
	return []any{
		uuid.UUID(v.UserID),
		string(v.Role),
		string(v.OverallStatus),
		string(v.CurrentStep),
		string(v.PersonalInfoStatus),
		v.PersonalInfo.FullName,
		v.PersonalInfo.DateOfBirth,
		v.PersonalInfo.NationalID,
		v.PersonalInfo.Address.Street,
		v.PersonalInfo.Address.City,
		v.PersonalInfo.Address.Country,
		string(v.Documents.Status),
		pq.Array(kinds),
		string(v.SelfieStatus),
		v.Phone.PhoneNumber,
		v.Phone.Verified,
		nullTime(v.Phone.VerifiedAt),
		v.RejectionReason,
		nullTime(v.SubmittedAt),
		nullTime(v.ReviewedAt),
		reviewedBy,
		v.CreatedAt,
		v.UpdatedAt,
	}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

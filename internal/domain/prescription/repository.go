package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository persists prescriptions in Postgres.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS prescriptions (
	prescription_id BIGSERIAL PRIMARY KEY,
	appointment_id  BIGINT NOT NULL,
	patient_id      BIGINT NOT NULL,
	doctor_id       BIGINT NOT NULL,
	medication      TEXT NOT NULL,
	dosage          TEXT NOT NULL,
	days            INT NOT NULL,
	issued_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_prescriptions_patient ON prescriptions (patient_id);
CREATE INDEX IF NOT EXISTS idx_prescriptions_appointment ON prescriptions (appointment_id);
CREATE INDEX IF NOT EXISTS idx_prescriptions_issued_at ON prescriptions (issued_at);
`

// EnsureSchema creates the prescriptions table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert persists a candidate record. The database assigns the id and the
// issue timestamp; the complete stored record is returned.
func (r *Repository) Insert(ctx context.Context, cmd *CreateCommand) (*Prescription, error) {
	query := `
		INSERT INTO prescriptions (appointment_id, patient_id, doctor_id, medication, dosage, days)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING prescription_id, issued_at
	`

	p := &Prescription{
		AppointmentID: cmd.AppointmentID,
		PatientID:     cmd.PatientID,
		DoctorID:      cmd.DoctorID,
		Medication:    cmd.Medication,
		Dosage:        cmd.Dosage,
		Days:          cmd.Days,
	}

	err := r.pool.QueryRow(ctx, query,
		cmd.AppointmentID,
		cmd.PatientID,
		cmd.DoctorID,
		cmd.Medication,
		cmd.Dosage,
		cmd.Days,
	).Scan(&p.PrescriptionID, &p.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("insert prescription: %w", err)
	}

	return p, nil
}

// Get retrieves a prescription by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Prescription, error) {
	query := `
		SELECT prescription_id, appointment_id, patient_id, doctor_id, medication, dosage, days, issued_at
		FROM prescriptions
		WHERE prescription_id = $1
	`

	p := &Prescription{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.PrescriptionID, &p.AppointmentID, &p.PatientID, &p.DoctorID,
		&p.Medication, &p.Dosage, &p.Days, &p.IssuedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	return p, nil
}

// List returns the page of prescriptions matching the filter, most recently
// issued first, plus the total match count.
func (r *Repository) List(ctx context.Context, filter Filter, page Page) ([]*Prescription, int, error) {
	page = page.Normalize()

	where, args := buildWhere(filter)

	var total int
	countQuery := "SELECT count(*) FROM prescriptions" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT prescription_id, appointment_id, patient_id, doctor_id, medication, dosage, days, issued_at
		FROM prescriptions%s
		ORDER BY issued_at DESC
		OFFSET $%d LIMIT $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, page.Skip, page.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	prescriptions := make([]*Prescription, 0, page.Limit)
	for rows.Next() {
		p := &Prescription{}
		err := rows.Scan(
			&p.PrescriptionID, &p.AppointmentID, &p.PatientID, &p.DoctorID,
			&p.Medication, &p.Dosage, &p.Days, &p.IssuedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan prescription: %w", err)
		}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	r.logger.Info("prescriptions retrieved",
		zap.Int("total", total),
		zap.Int("returned", len(prescriptions)),
	)
	return prescriptions, total, nil
}

// buildWhere renders the optional filter as a WHERE clause with positional args.
func buildWhere(filter Filter) (string, []any) {
	var conds []string
	var args []any

	if filter.PatientID > 0 {
		args = append(args, filter.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.AppointmentID > 0 {
		args = append(args, filter.AppointmentID)
		conds = append(conds, fmt.Sprintf("appointment_id = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"oscan-intake/pkg"
)

// Open connects to Postgres through lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

// Repository reads accounts, screening records and appointments owned by
// the web front end.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

const userColumns = `id, username, email, role, COALESCE(specialization, '')`

func scanUser(row interface{ Scan(...any) error }) (pkg.User, error) {
	var u pkg.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Specialization)
	return u, err
}

// GetUser returns the account with the given id or pkg.ErrNotFound.
func (r *Repository) GetUser(ctx context.Context, id int64) (pkg.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return pkg.User{}, pkg.ErrNotFound
	}
	if err != nil {
		return pkg.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// ListDoctors returns every doctor account ordered by id.
func (r *Repository) ListDoctors(ctx context.Context) ([]pkg.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, pkg.UserRoleDoctor)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()
	var doctors []pkg.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		doctors = append(doctors, u)
	}
	return doctors, rows.Err()
}

// GetPatientRecord loads a screening case for notification purposes.
func (r *Repository) GetPatientRecord(ctx context.Context, id int64) (pkg.PatientRecord, error) {
	var (
		rec      pkg.PatientRecord
		doctorID sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, doctor_id, timestamp, prediction, confidence,
                pain_level, bleeding, swelling, habits, pdf_path, status
         FROM patient_records
         WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.UserID, &doctorID, &rec.Timestamp, &rec.Prediction, &rec.Confidence,
		&rec.PainLevel, &rec.Bleeding, &rec.Swelling, &rec.Habits, &rec.PDFPath, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return pkg.PatientRecord{}, pkg.ErrNotFound
	}
	if err != nil {
		return pkg.PatientRecord{}, fmt.Errorf("get patient record %d: %w", id, err)
	}
	if doctorID.Valid {
		rec.DoctorID = &doctorID.Int64
	}
	return rec, nil
}

// GetAppointment loads a booked appointment.
func (r *Repository) GetAppointment(ctx context.Context, id int64) (pkg.Appointment, error) {
	var a pkg.Appointment
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, patient_id, doctor_id, start_time, end_time, reason, status
         FROM appointments
         WHERE id = $1`, id,
	).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.EndTime, &a.Reason, &a.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return pkg.Appointment{}, pkg.ErrNotFound
	}
	if err != nil {
		return pkg.Appointment{}, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

package core

import (
	"context"

	"oscan-intake/pkg"
)

// StaticDirectory serves accounts from configuration when no database is
// available.
type StaticDirectory struct {
	users []pkg.User
}

func NewStaticDirectory(users []pkg.User) *StaticDirectory {
	return &StaticDirectory{users: append([]pkg.User(nil), users...)}
}

func (d *StaticDirectory) GetUser(_ context.Context, id int64) (pkg.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return pkg.User{}, pkg.ErrNotFound
}

// ListDoctors returns doctor accounts in configuration order.
func (d *StaticDirectory) ListDoctors(_ context.Context) ([]pkg.User, error) {
	var doctors []pkg.User
	for _, u := range d.users {
		if u.IsDoctor() {
			doctors = append(doctors, u)
		}
	}
	return doctors, nil
}

// GetPatientRecord always reports not found; clinical records only live in
// the database.
func (d *StaticDirectory) GetPatientRecord(_ context.Context, _ int64) (pkg.PatientRecord, error) {
	return pkg.PatientRecord{}, pkg.ErrNotFound
}

func (d *StaticDirectory) GetAppointment(_ context.Context, _ int64) (pkg.Appointment, error) {
	return pkg.Appointment{}, pkg.ErrNotFound
}

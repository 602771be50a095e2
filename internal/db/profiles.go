package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/banshee-data/radar-sweep/internal/serialmux"
)

var (
	// ErrProfileNotFound is returned when no profile matches the given ID or name.
	ErrProfileNotFound = errors.New("sensor profile not found")
	// ErrProfileExists is returned when another profile already has the name.
	ErrProfileExists = errors.New("sensor profile already exists")
)

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// SensorProfile is a named set of serial and sweep settings for one
// rangefinder installation.
type SensorProfile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PortPath    string `json:"port_path"`
	BaudRate    int    `json:"baud_rate"`
	DataBits    int    `json:"data_bits"`
	StopBits    int    `json:"stop_bits"`
	Parity      string `json:"parity"`
	Resolution  int    `json:"resolution"`
	MoveSize    int    `json:"move_size"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// PortOptions returns the profile's serial settings.
func (p *SensorProfile) PortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate: p.BaudRate,
		DataBits: p.DataBits,
		StopBits: p.StopBits,
		Parity:   p.Parity,
	}
}

// Normalise validates the profile and fills in serial defaults, so that what
// is stored is always what OpenPort will use.
func (p *SensorProfile) Normalise() error {
	p.Name = strings.TrimSpace(p.Name)
	p.PortPath = strings.TrimSpace(p.PortPath)
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.PortPath == "" {
		return errors.New("port_path is required")
	}

	opts, err := p.PortOptions().Normalise()
	if err != nil {
		return err
	}
	p.BaudRate, p.DataBits, p.StopBits, p.Parity = opts.BaudRate, opts.DataBits, opts.StopBits, opts.Parity

	if p.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %d", p.Resolution)
	}
	if p.MoveSize < 0 || p.MoveSize > p.Resolution {
		return fmt.Errorf("move_size must be between 0 and %d, got %d", p.Resolution, p.MoveSize)
	}
	return nil
}

const profileColumns = `id, name, port_path, baud_rate, data_bits, stop_bits, parity, resolution, move_size, description, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*SensorProfile, error) {
	var p SensorProfile
	err := s.Scan(&p.ID, &p.Name, &p.PortPath, &p.BaudRate, &p.DataBits, &p.StopBits,
		&p.Parity, &p.Resolution, &p.MoveSize, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns all sensor profiles, oldest first.
func (db *DB) ListProfiles() ([]SensorProfile, error) {
	rows, err := db.Query(`SELECT ` + profileColumns + ` FROM sensor_profiles ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor profiles: %w", err)
	}
	defer rows.Close()

	profiles := []SensorProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor profiles: %w", err)
	}
	return profiles, nil
}

// GetProfile returns the profile with the given ID.
func (db *DB) GetProfile(id int64) (*SensorProfile, error) {
	p, err := scanProfile(db.QueryRow(`SELECT `+profileColumns+` FROM sensor_profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", id, ErrProfileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sensor profile: %w", err)
	}
	return p, nil
}

// GetProfileByName returns the profile with the given name.
func (db *DB) GetProfileByName(name string) (*SensorProfile, error) {
	p, err := scanProfile(db.QueryRow(`SELECT `+profileColumns+` FROM sensor_profiles WHERE name = ?`, strings.TrimSpace(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %q: %w", name, ErrProfileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sensor profile: %w", err)
	}
	return p, nil
}

// CreateProfile validates and inserts p, setting its ID and timestamps.
func (db *DB) CreateProfile(p *SensorProfile) error {
	if err := p.Normalise(); err != nil {
		return fmt.Errorf("invalid sensor profile: %w", err)
	}

	result, err := db.Exec(`INSERT INTO sensor_profiles (name, port_path, baud_rate, data_bits, stop_bits, parity, resolution, move_size, description)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.PortPath, p.BaudRate, p.DataBits, p.StopBits, p.Parity, p.Resolution, p.MoveSize, p.Description)
	if isUniqueViolation(err) {
		return fmt.Errorf("profile %q: %w", p.Name, ErrProfileExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create sensor profile: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	stored, err := db.GetProfile(id)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

// UpdateProfile replaces the stored fields of the profile with p.ID.
func (db *DB) UpdateProfile(p *SensorProfile) error {
	if err := p.Normalise(); err != nil {
		return fmt.Errorf("invalid sensor profile: %w", err)
	}

	result, err := db.Exec(`UPDATE sensor_profiles
	          SET name = ?, port_path = ?, baud_rate = ?, data_bits = ?, stop_bits = ?,
	              parity = ?, resolution = ?, move_size = ?, description = ?
	          WHERE id = ?`,
		p.Name, p.PortPath, p.BaudRate, p.DataBits, p.StopBits, p.Parity, p.Resolution, p.MoveSize, p.Description, p.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("profile %q: %w", p.Name, ErrProfileExists)
	}
	if err != nil {
		return fmt.Errorf("failed to update sensor profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("profile %d: %w", p.ID, ErrProfileNotFound)
	}
	return nil
}

// DeleteProfile removes the profile with the given ID.
func (db *DB) DeleteProfile(id int64) error {
	result, err := db.Exec(`DELETE FROM sensor_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sensor profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("profile %d: %w", id, ErrProfileNotFound)
	}
	return nil
}

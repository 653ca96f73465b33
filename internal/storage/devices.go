package storage

// devices.go contains SQLiteStore methods for device registry operations.
// Devices are paired clients identified by a digest of their public key.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// Device roles. Currently informational: the node only distinguishes
// enabled from disabled, but the role is persisted for future use.
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// Device represents a paired device's trust record.
type Device struct {
	ID        string    // Digest prefix of the public key (12 hex chars).
	PublicKey string    // Hex-encoded Ed25519 verification key.
	Role      string    // "client" or "admin".
	Enabled   bool      // Disabled devices fail authentication but keep their record.
	CreatedAt time.Time // When the device was paired (or last re-paired).
}

// SaveDevice persists a device to the database.
// Uses INSERT OR REPLACE so re-pairing the same key (same derived ID)
// overwrites the prior record.
func (s *SQLiteStore) SaveDevice(device *Device) error {
	if device == nil {
		return errors.New("device cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: saving device %s (role=%s enabled=%t)", device.ID, device.Role, device.Enabled)

	const query = `
		INSERT OR REPLACE INTO devices
			(id, public_key, role, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		device.ID,
		device.PublicKey,
		device.Role,
		boolToInt(device.Enabled),
		device.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save device: %w", err)
	}

	return nil
}

// GetDevice retrieves a device by ID.
// Returns nil, nil if the device does not exist.
func (s *SQLiteStore) GetDevice(id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, public_key, role, enabled, created_at
		FROM devices
		WHERE id = ?
	`

	device, err := scanDevice(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	return device, nil
}

// ListDevices returns all paired devices, oldest first.
func (s *SQLiteStore) ListDevices() ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, public_key, role, enabled, created_at
		FROM devices
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDeviceRows(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device rows: %w", err)
	}

	return devices, nil
}

// SetEnabled flips the enabled flag for a device.
// Returns ErrDeviceNotFound if the device does not exist.
// Records are never deleted; revocation only disables.
func (s *SQLiteStore) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: setting device %s enabled=%t", id, enabled)

	result, err := s.db.Exec("UPDATE devices SET enabled = ? WHERE id = ?", boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set enabled rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var (
		device    Device
		enabled   int
		createdAt string
	)

	if err := row.Scan(&device.ID, &device.PublicKey, &device.Role, &enabled, &createdAt); err != nil {
		return nil, err
	}

	device.Enabled = enabled != 0

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	device.CreatedAt = parsed

	return &device, nil
}

func scanDeviceRows(rows *sql.Rows) (*Device, error) {
	device, err := scanDevice(rows)
	if err != nil {
		return nil, fmt.Errorf("scan device row: %w", err)
	}
	return device, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package parser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/model"

	"github.com/go-sql-driver/mysql"
)

// ErrSnapshotNotFound is returned when a device has no stored transcript.
var ErrSnapshotNotFound = errors.New("no access-control snapshot stored for device")

// Snapshot is one stored capture of show access-control-config.
type Snapshot struct {
	Device     string
	CapturedAt time.Time
	Transcript string
}

// SnapshotStore reads transcripts collected into MariaDB by the capture job.
//
//	CREATE TABLE acp_snapshot (
//	    id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    device_name VARCHAR(128) NOT NULL,
//	    captured_at DATETIME NOT NULL,
//	    transcript LONGTEXT NOT NULL
//	)
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(dsn string) (*SnapshotStore, error) {
	cfg, err := snapshotConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

// snapshotConfig parses dsn and turns on parseTime, which captured_at needs.
func snapshotConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg, nil
}

func (s *SnapshotStore) Close() {
	s.db.Close()
}

// Latest returns the newest snapshot of a device.
func (s *SnapshotStore) Latest(ctx context.Context, device string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT device_name, captured_at, transcript FROM acp_snapshot WHERE device_name = ? ORDER BY captured_at DESC, id DESC LIMIT 1",
		device)

	var snap Snapshot
	var captured sql.NullTime
	if err := row.Scan(&snap.Device, &captured, &snap.Transcript); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, device)
		}
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", device, err)
	}
	if captured.Valid {
		snap.CapturedAt = captured.Time
	}
	return &snap, nil
}

// Devices lists every device with at least one snapshot.
func (s *SnapshotStore) Devices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT device_name FROM acp_snapshot ORDER BY device_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		devices = append(devices, name)
	}
	return devices, rows.Err()
}

// Reader exposes the transcript to the parser.
func (s *Snapshot) Reader() io.Reader {
	return strings.NewReader(s.Transcript)
}

// LoadLatest parses and resolves the newest snapshot of a device.
func (s *SnapshotStore) LoadLatest(ctx context.Context, device string, diags *diag.Collector) (*model.Policy, error) {
	snap, err := s.Latest(ctx, device)
	if err != nil {
		return nil, err
	}
	return Load(snap.Reader(), diags)
}

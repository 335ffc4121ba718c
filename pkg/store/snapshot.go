package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mchmarny/pulse/pkg/intel"
	"github.com/mchmarny/pulse/pkg/risk"
)

const (
	insertSnapshot = `INSERT INTO snapshot (id, created_at, model_version, fingerprint, pincodes)
		VALUES (?, ?, ?, ?, ?)`

	insertPincode = `INSERT INTO snapshot_pincode (snapshot_id, pincode, state, district,
		latitude, longitude, governance, education, hunger, rural, electoral, labor,
		risk_level, anomaly, anomaly_score, cluster_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSnapshots = `SELECT id, created_at, model_version, fingerprint, pincodes
		FROM snapshot ORDER BY created_at DESC`

	selectSnapshot = `SELECT id, created_at, model_version, fingerprint, pincodes
		FROM snapshot WHERE id = ?`

	selectTop = `SELECT pincode, state, district, latitude, longitude, governance,
		education, hunger, rural, electoral, labor, risk_level, anomaly, anomaly_score, cluster_id
		FROM snapshot_pincode WHERE snapshot_id = ?
		ORDER BY governance DESC, pincode ASC LIMIT ?`
)

// Snapshot describes one saved set of pincode summaries.
type Snapshot struct {
	ID           string    `json:"id" yaml:"id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	ModelVersion string    `json:"model_version" yaml:"model_version"`
	Fingerprint  string    `json:"fingerprint" yaml:"fingerprint"`
	Pincodes     int       `json:"pincodes" yaml:"pincodes"`
}

// Save writes meta and rows in one transaction and returns the snapshot id.
// Empty ID and CreatedAt are filled in.
func (s *Store) Save(ctx context.Context, meta Snapshot, rows []*intel.PincodeSummary) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrStoreNotInitialized
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.Pincodes = len(rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(insertSnapshot),
		meta.ID, meta.CreatedAt, meta.ModelVersion, meta.Fingerprint, meta.Pincodes); err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertPincode))
	if err != nil {
		return "", fmt.Errorf("failed to prepare pincode statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, meta.ID, r.Pincode, r.State, r.District,
			r.Latitude, r.Longitude, r.Governance,
			r.Education, r.Hunger, r.Rural, r.Electoral, r.Labor,
			r.RiskLevel, r.Anomaly, r.AnomalyScore, r.ClusterID); err != nil {
			return "", fmt.Errorf("failed to insert pincode %d: %w", r.Pincode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return meta.ID, nil
}

// List returns all snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]*Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, selectSnapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	list := make([]*Snapshot, 0)
	for rows.Next() {
		var m Snapshot
		if err := rows.Scan(&m.ID, &m.CreatedAt, &m.ModelVersion, &m.Fingerprint, &m.Pincodes); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// Get returns one snapshot by id.
func (s *Store) Get(ctx context.Context, id string) (*Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreNotInitialized
	}

	var m Snapshot
	err := s.db.QueryRowContext(ctx, s.rebind(selectSnapshot), id).
		Scan(&m.ID, &m.CreatedAt, &m.ModelVersion, &m.Fingerprint, &m.Pincodes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	return &m, nil
}

// Top returns the limit highest governance risk pincodes of a snapshot.
func (s *Store) Top(ctx context.Context, id string, limit int) ([]*intel.PincodeSummary, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectTop), id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %s: %w", id, err)
	}
	defer rows.Close()

	list := make([]*intel.PincodeSummary, 0, limit)
	for rows.Next() {
		p := &intel.PincodeSummary{}
		var sc risk.SectorScores
		if err := rows.Scan(&p.Pincode, &p.State, &p.District, &p.Latitude, &p.Longitude,
			&p.Governance, &sc.Education, &sc.Hunger, &sc.Rural, &sc.Electoral, &sc.Labor,
			&p.RiskLevel, &p.Anomaly, &p.AnomalyScore, &p.ClusterID); err != nil {
			return nil, fmt.Errorf("failed to scan pincode: %w", err)
		}
		p.SectorScores = sc
		list = append(list, p)
	}
	return list, rows.Err()
}

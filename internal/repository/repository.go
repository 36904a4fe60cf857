package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/similarity"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrNotFound = errors.New("fingerprint not found")

// Repository persists StoredFingerprint records. Queries are written with ?
// placeholders and rebound for the active driver.
type Repository struct {
	db     *sqlx.DB
	driver string
}

func NewRepository(driver, dsn string, maxConns, maxIdleConns int) (*Repository, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// one connection keeps in-memory databases shared and serializes writers
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.Exec(pragma); execErr != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	} else {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(time.Hour)
	}

	return &Repository{db: db, driver: driver}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fingerprints (
		fingerprint_id  TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL DEFAULT '',
		user_id         TEXT NULL,
		core_hash       TEXT NOT NULL,
		device_category TEXT NOT NULL,
		signals         TEXT NOT NULL,
		metadata        TEXT NOT NULL,
		created_at      BIGINT NOT NULL,
		last_seen       BIGINT NOT NULL,
		seen_count      INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fingerprints_tenant_last_seen ON fingerprints (tenant_id, last_seen DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_fingerprints_core_hash ON fingerprints (tenant_id, core_hash)`,
}

// Migrate creates the schema if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// fingerprintRow is the storage shape; timestamps are unix microseconds so
// ordering works identically on both drivers.
type fingerprintRow struct {
	FingerprintID  string         `db:"fingerprint_id"`
	TenantID       string         `db:"tenant_id"`
	UserID         sql.NullString `db:"user_id"`
	CoreHash       string         `db:"core_hash"`
	DeviceCategory string         `db:"device_category"`
	Signals        string         `db:"signals"`
	Metadata       string         `db:"metadata"`
	CreatedAt      int64          `db:"created_at"`
	LastSeen       int64          `db:"last_seen"`
	SeenCount      int            `db:"seen_count"`
}

func (row fingerprintRow) toModel() (models.StoredFingerprint, error) {
	fp := models.StoredFingerprint{
		FingerprintID:  row.FingerprintID,
		TenantID:       row.TenantID,
		DeviceCategory: models.DeviceCategory(row.DeviceCategory),
		CreatedAt:      time.UnixMicro(row.CreatedAt).UTC(),
		LastSeen:       time.UnixMicro(row.LastSeen).UTC(),
		SeenCount:      row.SeenCount,
	}
	if row.UserID.Valid {
		userID := row.UserID.String
		fp.UserID = &userID
	}
	if err := json.Unmarshal([]byte(row.Signals), &fp.Signals); err != nil {
		return fp, fmt.Errorf("failed to unmarshal signals for %s: %w", row.FingerprintID, err)
	}
	if err := json.Unmarshal([]byte(row.Metadata), &fp.Metadata); err != nil {
		return fp, fmt.Errorf("failed to unmarshal metadata for %s: %w", row.FingerprintID, err)
	}
	return fp, nil
}

const selectColumns = `fingerprint_id, tenant_id, user_id, core_hash, device_category, signals, metadata, created_at, last_seen, seen_count`

// Create stores a new fingerprint record.
func (r *Repository) Create(ctx context.Context, fp *models.StoredFingerprint) error {
	signalsJSON, err := json.Marshal(fp.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}
	metadataJSON, err := json.Marshal(fp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var userID sql.NullString
	if fp.UserID != nil {
		userID = sql.NullString{String: *fp.UserID, Valid: true}
	}

	query := r.db.Rebind(`
		INSERT INTO fingerprints
		(fingerprint_id, tenant_id, user_id, core_hash, device_category, signals, metadata, created_at, last_seen, seen_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.ExecContext(ctx, query,
		fp.FingerprintID, fp.TenantID, userID, similarity.ComputeCoreHash(fp.Signals),
		string(fp.DeviceCategory), string(signalsJSON), string(metadataJSON),
		fp.CreatedAt.UnixMicro(), fp.LastSeen.UnixMicro(), fp.SeenCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create fingerprint: %w", err)
	}
	return nil
}

// Get retrieves a fingerprint by id.
func (r *Repository) Get(ctx context.Context, fingerprintID string) (*models.StoredFingerprint, error) {
	var row fingerprintRow
	query := r.db.Rebind(`SELECT ` + selectColumns + ` FROM fingerprints WHERE fingerprint_id = ?`)

	if err := r.db.GetContext(ctx, &row, query, fingerprintID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}

	fp, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

// FindCandidates returns a tenant's fingerprints seen since the given time, most
// recent first. Rows whose JSON columns no longer decode are logged and skipped.
func (r *Repository) FindCandidates(ctx context.Context, tenantID string, since time.Time, limit int) ([]models.StoredFingerprint, error) {
	query := r.db.Rebind(`
		SELECT ` + selectColumns + `
		FROM fingerprints
		WHERE tenant_id = ? AND last_seen >= ?
		ORDER BY last_seen DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryxContext(ctx, query, tenantID, since.UnixMicro(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn("Failed to close database rows", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	candidates := make([]models.StoredFingerprint, 0, limit)
	for rows.Next() {
		var row fingerprintRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fp, err := row.toModel()
		if err != nil {
			// one unreadable record must not block the tenant's recognitions
			logger.Warn("Skipping unreadable fingerprint", map[string]any{
				"fingerprint_id": row.FingerprintID,
				"error":          err.Error(),
			})
			continue
		}
		candidates = append(candidates, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fingerprints: %w", err)
	}

	return candidates, nil
}

// Touch records a confirmed sighting: signals and metadata are refreshed,
// seen_count grows by one and last_seen never moves backwards.
func (r *Repository) Touch(ctx context.Context, fingerprintID string, signals models.Fingerprint, metadata models.FingerprintMetadata, seenAt time.Time) error {
	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	seen := seenAt.UnixMicro()
	query := r.db.Rebind(`
		UPDATE fingerprints
		SET signals = ?, metadata = ?, core_hash = ?,
			seen_count = seen_count + 1,
			last_seen = CASE WHEN last_seen < ? THEN ? ELSE last_seen END
		WHERE fingerprint_id = ?
	`)

	res, err := r.db.ExecContext(ctx, query,
		string(signalsJSON), string(metadataJSON), similarity.ComputeCoreHash(signals),
		seen, seen, fingerprintID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch fingerprint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch fingerprint: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByCoreHash counts a tenant's records sharing one core hash.
func (r *Repository) CountByCoreHash(ctx context.Context, tenantID, coreHash string) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM fingerprints WHERE tenant_id = ? AND core_hash = ?`)
	if err := r.db.GetContext(ctx, &n, query, tenantID, coreHash); err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return n, nil
}

// Count returns the number of stored fingerprints.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM fingerprints`); err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return n, nil
}

// Driver returns the database driver name.
func (r *Repository) Driver() string {
	return r.driver
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

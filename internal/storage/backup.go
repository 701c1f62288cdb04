package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/finhelper/internal/common"
)

const (
	backupExt        = ".db"
	backupMetaExt    = ".meta.json"
	maxAutoBackups   = 5
	backupTimeLayout = "2006-01-02-150405.000"
)

// Backup errors.
var (
	ErrBackupNotFound  = fmt.Errorf("backup %w", common.ErrNotFound)
	ErrBackupCorrupted = errors.New("backup integrity check failed")
	ErrBackupExists    = fmt.Errorf("backup %w", common.ErrDuplicate)
)

// BackupInfo describes one ledger snapshot.
type BackupInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion uint           `json:"schema_version"`
	IsAuto        bool           `json:"is_auto"`
}

// BackupManager snapshots the ledger file into a backups directory next to it.
type BackupManager struct {
	store *SQLiteStorage
	dir   string
}

// NewBackupManager creates the backups directory beside the database file.
// In-memory databases cannot be backed up.
func NewBackupManager(store *SQLiteStorage) (*BackupManager, error) {
	if store.dbPath == ":memory:" {
		return nil, fmt.Errorf("%w: in-memory databases cannot be backed up", common.ErrInvalidInput)
	}
	dbPath, err := filepath.Abs(store.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	dir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}
	return &BackupManager{store: store, dir: dir}, nil
}

// Dir returns the backups directory.
func (bm *BackupManager) Dir() string {
	return bm.dir
}

// Create snapshots the ledger as id. An empty id is generated from the current time.
func (bm *BackupManager) Create(ctx context.Context, id, description string) (*BackupInfo, error) {
	return bm.create(ctx, id, description, false)
}

// AutoBackup snapshots the ledger before operation and prunes all but the newest
// automatic backups. Manual backups are never pruned.
func (bm *BackupManager) AutoBackup(ctx context.Context, operation string) (*BackupInfo, error) {
	id := fmt.Sprintf("auto-%s-%s", operation, time.Now().Format(backupTimeLayout))
	info, err := bm.create(ctx, id, "Automatic backup before "+operation, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create automatic backup: %w", err)
	}
	if err := bm.pruneAuto(ctx); err != nil {
		slog.Warn("failed to prune old automatic backups", "error", err)
	}
	return info, nil
}

func (bm *BackupManager) create(ctx context.Context, id, description string, auto bool) (*BackupInfo, error) {
	if id == "" {
		id = "backup-" + time.Now().Format(backupTimeLayout)
	}
	if err := validateBackupID(id); err != nil {
		return nil, err
	}

	path := bm.path(id)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackupExists, id)
	}

	version, err := bm.store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := bm.store.rowCounts(ctx)
	if err != nil {
		return nil, err
	}

	// VACUUM INTO writes a consistent copy even with a live WAL.
	if _, err := bm.store.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	info := &BackupInfo{
		ID:            id,
		CreatedAt:     time.Now().UTC(),
		Description:   description,
		FileSize:      stat.Size(),
		RowCounts:     counts,
		SchemaVersion: version,
		IsAuto:        auto,
	}
	if err := writeBackupMeta(bm.metaPath(id), info); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Error("failed to remove backup after metadata failure", "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save backup metadata: %w", err)
	}

	slog.Info("created backup", "id", id, "size", info.FileSize, "auto", auto)
	return info, nil
}

// List returns every backup, newest first. Backups with unreadable metadata are skipped.
func (bm *BackupManager) List(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(bm.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), backupMetaExt) {
			continue
		}
		info, err := readBackupMeta(filepath.Join(bm.dir, entry.Name()))
		if err != nil {
			slog.Debug("skipping unreadable backup metadata", "file", entry.Name(), "error", err)
			continue
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Get returns one backup's metadata.
func (bm *BackupManager) Get(_ context.Context, id string) (*BackupInfo, error) {
	if err := validateBackupID(id); err != nil {
		return nil, err
	}
	info, err := readBackupMeta(bm.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	return info, err
}

// Restore replaces the ledger with backup id. The store is closed first and must not
// be used afterwards; reopen the database to continue.
func (bm *BackupManager) Restore(_ context.Context, id string) error {
	if err := validateBackupID(id); err != nil {
		return err
	}
	path := bm.path(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return fmt.Errorf("failed to access backup: %w", err)
	}
	if err := verifyIntegrity(path); err != nil {
		return fmt.Errorf("%w: %w", ErrBackupCorrupted, err)
	}

	if err := bm.store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	dbPath := bm.store.dbPath
	safety := dbPath + ".restore-backup"
	if err := copyFile(dbPath, safety); err != nil {
		return fmt.Errorf("failed to save current database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove stale SQLite side file", "file", dbPath+suffix, "error", err)
		}
	}

	if err := copyFile(path, dbPath); err != nil {
		if rbErr := copyFile(safety, dbPath); rbErr != nil {
			slog.Error("failed to put the original database back", "error", rbErr)
		}
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	if err := os.Remove(safety); err != nil {
		slog.Warn("failed to remove pre-restore copy", "file", safety, "error", err)
	}

	slog.Info("restored backup", "id", id)
	return nil
}

// Delete removes backup id.
func (bm *BackupManager) Delete(_ context.Context, id string) error {
	if err := validateBackupID(id); err != nil {
		return err
	}
	if err := os.Remove(bm.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return fmt.Errorf("failed to remove backup: %w", err)
	}
	if err := os.Remove(bm.metaPath(id)); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove backup metadata", "id", id, "error", err)
	}
	return nil
}

func (bm *BackupManager) pruneAuto(ctx context.Context) error {
	backups, err := bm.List(ctx)
	if err != nil {
		return err
	}
	kept := 0
	for _, b := range backups {
		if !b.IsAuto {
			continue
		}
		kept++
		if kept <= maxAutoBackups {
			continue
		}
		if err := bm.Delete(ctx, b.ID); err != nil {
			slog.Debug("failed to prune automatic backup", "id", b.ID, "error", err)
		}
	}
	return nil
}

func (bm *BackupManager) path(id string) string {
	return filepath.Join(bm.dir, id+backupExt)
}

func (bm *BackupManager) metaPath(id string) string {
	return filepath.Join(bm.dir, id+backupMetaExt)
}

// rowCounts counts the rows of each ledger table.
func (s *SQLiteStorage) rowCounts(ctx context.Context) (map[string]int, error) {
	queries := map[string]string{
		"accounts":     "SELECT COUNT(*) FROM accounts",
		"categories":   "SELECT COUNT(*) FROM categories",
		"transactions": "SELECT COUNT(*) FROM transactions",
		"budgets":      "SELECT COUNT(*) FROM budgets",
	}
	counts := make(map[string]int, len(queries))
	for table, query := range queries {
		var n int
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func validateBackupID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\'";`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: backup id %q", common.ErrInvalidInput, id)
	}
	return nil
}

func verifyIntegrity(path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return errors.New(result)
	}
	return nil
}

func writeBackupMeta(path string, info *BackupInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readBackupMeta(path string) (*BackupInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a validated id
	if err != nil {
		return nil, err
	}
	var info BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// copyFile copies src to dst through a temporary file and a rename.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- internal paths only
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finhelper/internal/common"
)

func TestBackupManager_InMemoryRejected(t *testing.T) {
	_, err := NewBackupManager(createMemoryStorage(t))
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestBackupManager_CreateAndList(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	createTestAccount(t, store, 100000)
	createTestCategory(t, store, "Coffee")

	bm, err := NewBackupManager(store)
	require.NoError(t, err)
	assert.Equal(t, "backups", filepath.Base(bm.Dir()))

	info, err := bm.Create(ctx, "before-cleanup", "manual snapshot")
	require.NoError(t, err)
	assert.Equal(t, "before-cleanup", info.ID)
	assert.Equal(t, uint(ExpectedSchemaVersion), info.SchemaVersion)
	assert.Equal(t, 1, info.RowCounts["accounts"])
	assert.Equal(t, 0, info.RowCounts["transactions"])
	assert.Positive(t, info.FileSize)
	assert.False(t, info.IsAuto)
	assert.FileExists(t, filepath.Join(bm.Dir(), "before-cleanup.db"))

	_, err = bm.Create(ctx, "before-cleanup", "")
	require.ErrorIs(t, err, ErrBackupExists)

	generated, err := bm.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Contains(t, generated.ID, "backup-")

	backups, err := bm.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.False(t, backups[0].CreatedAt.Before(backups[1].CreatedAt), "newest first")

	got, err := bm.Get(ctx, "before-cleanup")
	require.NoError(t, err)
	assert.Equal(t, "manual snapshot", got.Description)

	_, err = bm.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestBackupManager_InvalidIDs(t *testing.T) {
	ctx := context.Background()
	bm, err := NewBackupManager(createTestStorage(t))
	require.NoError(t, err)

	for _, id := range []string{"../escape", "a/b", "quote'd", "semi;colon"} {
		t.Run(id, func(t *testing.T) {
			_, err := bm.Create(ctx, id, "")
			require.ErrorIs(t, err, common.ErrInvalidInput)
			require.ErrorIs(t, bm.Delete(ctx, id), common.ErrInvalidInput)
		})
	}
}

func TestBackupManager_AutoBackupRetention(t *testing.T) {
	ctx := context.Background()
	bm, err := NewBackupManager(createTestStorage(t))
	require.NoError(t, err)

	_, err = bm.Create(ctx, "keep-me", "")
	require.NoError(t, err)

	for i := 0; i < maxAutoBackups+2; i++ {
		// Auto ids carry a per-second timestamp; distinct operations keep them unique.
		_, err := bm.AutoBackup(ctx, "import"+string(rune('a'+i)))
		require.NoError(t, err)
	}

	backups, err := bm.List(ctx)
	require.NoError(t, err)

	var auto, manual int
	for _, b := range backups {
		if b.IsAuto {
			auto++
		} else {
			manual++
		}
	}
	assert.Equal(t, maxAutoBackups, auto)
	assert.Equal(t, 1, manual)
}

func TestBackupManager_Restore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	createTestAccount(t, store, 5000)

	bm, err := NewBackupManager(store)
	require.NoError(t, err)
	_, err = bm.Create(ctx, "one-account", "")
	require.NoError(t, err)

	createTestAccount(t, store, 7000)
	require.NoError(t, bm.Restore(ctx, "one-account"))

	reopened, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	require.NoError(t, reopened.Migrate(ctx))

	accounts, err := reopened.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	_, err = os.Stat(dbPath + ".restore-backup")
	assert.True(t, os.IsNotExist(err))
}

func TestBackupManager_RestoreErrors(t *testing.T) {
	ctx := context.Background()
	bm, err := NewBackupManager(createTestStorage(t))
	require.NoError(t, err)

	require.ErrorIs(t, bm.Restore(ctx, "missing"), ErrBackupNotFound)

	bogus := filepath.Join(bm.Dir(), "garbage.db")
	require.NoError(t, os.WriteFile(bogus, []byte("not a database"), 0600))
	require.ErrorIs(t, bm.Restore(ctx, "garbage"), ErrBackupCorrupted)
}

func TestBackupManager_Delete(t *testing.T) {
	ctx := context.Background()
	bm, err := NewBackupManager(createTestStorage(t))
	require.NoError(t, err)

	_, err = bm.Create(ctx, "old", "")
	require.NoError(t, err)
	require.NoError(t, bm.Delete(ctx, "old"))
	assert.NoFileExists(t, filepath.Join(bm.Dir(), "old.db"))
	assert.NoFileExists(t, filepath.Join(bm.Dir(), "old.meta.json"))

	require.ErrorIs(t, bm.Delete(ctx, "old"), ErrBackupNotFound)
}

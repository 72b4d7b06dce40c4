package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/database"
)

func openDB(t *testing.T, dir, name string, profile database.DatabaseProfile) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := map[string][]byte{}
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = data
	}
	return files
}

func TestBackupService_CreateBackup(t *testing.T) {
	dir := t.TempDir()
	mainDB := openDB(t, dir, database.NameMain, database.ProfileStandard)
	cacheDB := openDB(t, dir, database.NameCache, database.ProfileCache)

	_, err := mainDB.Conn().Exec(`INSERT INTO portfolios (id, user_id, name, currency, is_active, created_at, updated_at)
		VALUES ('pf-1', 'alice', 'Main', 'USD', 1, 0, 0)`)
	require.NoError(t, err)

	svc := NewBackupService([]*database.DB{mainDB, cacheDB}, filepath.Join(dir, "backups"), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC) }

	path, err := svc.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "eqtrak-backup-2024-03-15-123000.tar.gz", filepath.Base(path))

	files := readArchive(t, path)
	require.Contains(t, files, "eqtrak.db")
	require.Contains(t, files, "cache.db")
	require.Contains(t, files, metadataFile)

	var meta BackupMetadata
	require.NoError(t, json.Unmarshal(files[metadataFile], &meta))
	require.Len(t, meta.Databases, 2)
	for _, db := range meta.Databases {
		assert.True(t, strings.HasPrefix(db.Checksum, "sha256:"))
		assert.Equal(t, int64(len(files[db.Filename])), db.SizeBytes)
	}

	// The staging directory is cleaned up.
	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBackupService_RotateOldBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)
	svc := NewBackupService(nil, dir, zerolog.Nop())
	svc.now = func() time.Time { return now }

	for _, daysAgo := range []int{1, 2, 20, 25, 40} {
		name := archivePrefix + now.AddDate(0, 0, -daysAgo).Format(archiveTimestamp) + archiveSuffix
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	deleted, err := svc.RotateOldBackups(14)
	require.NoError(t, err)
	// The third newest is 20 days old but survives as part of the minimum.
	assert.Equal(t, 2, deleted)

	backups, err := svc.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, MinBackupsToKeep)
	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestBackupService_RotateKeepsEverythingWithoutRetention(t *testing.T) {
	dir := t.TempDir()
	svc := NewBackupService(nil, dir, zerolog.Nop())
	for i := 0; i < 5; i++ {
		name := archivePrefix + time.Date(2020, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(archiveTimestamp) + archiveSuffix
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	deleted, err := svc.RotateOldBackups(0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestBackupService_ListMissingDirectory(t *testing.T) {
	svc := NewBackupService(nil, filepath.Join(t.TempDir(), "absent"), zerolog.Nop())

	backups, err := svc.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

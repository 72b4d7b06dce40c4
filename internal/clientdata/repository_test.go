package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE current_prices (ticker TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE INDEX idx_prices_expires ON current_prices(expires_at);
`

type cachedPrice struct {
	Price  string `msgpack:"price"`
	Source string `msgpack:"source"`
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// repoAt returns a repository whose clock is fixed at now.
func repoAt(db *sql.DB, now time.Time) *Repository {
	r := NewRepository(db)
	r.now = func() time.Time { return now }
	return r
}

func TestStoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := repoAt(db, now)

	require.NoError(t, repo.Store(TablePrices, "AAPL", cachedPrice{Price: "187.25", Source: "ALPHA_VANTAGE"}, time.Hour))

	var got cachedPrice
	found, err := repo.GetIfFresh(TablePrices, "AAPL", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "187.25", got.Price)
	assert.Equal(t, "ALPHA_VANTAGE", got.Source)
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store(TablePrices, "AAPL", cachedPrice{Price: "1"}, time.Hour))
	require.NoError(t, repo.Store(TablePrices, "AAPL", cachedPrice{Price: "2"}, time.Hour))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM current_prices").Scan(&count))
	assert.Equal(t, 1, count)

	var got cachedPrice
	_, err := repo.Get(TablePrices, "AAPL", &got)
	require.NoError(t, err)
	assert.Equal(t, "2", got.Price)
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repoAt(db, now).Store(TablePrices, "AAPL", cachedPrice{Price: "1"}, time.Minute))

	later := repoAt(db, now.Add(2*time.Minute))
	var got cachedPrice
	found, err := later.GetIfFresh(TablePrices, "AAPL", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = later.Get(TablePrices, "AAPL", &got)
	require.NoError(t, err)
	assert.True(t, found, "stale data stays readable")
	assert.Equal(t, "1", got.Price)
}

func TestGet_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	var got cachedPrice
	found, err := repo.Get(TablePrices, "NOPE", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.GetIfFresh(TablePrices, "NOPE", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidTable(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	assert.Error(t, repo.Store("users; DROP TABLE x", "k", cachedPrice{}, time.Hour))
	_, err := repo.Get("other", "k", &cachedPrice{})
	assert.Error(t, err)
	_, err = repo.EvictExpired("other", 0)
	assert.Error(t, err)
	_, err = repo.Count("other")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	require.NoError(t, repo.Store(TablePrices, "AAPL", cachedPrice{Price: "1"}, time.Hour))

	require.NoError(t, repo.Delete(TablePrices, "AAPL"))
	require.NoError(t, repo.Delete(TablePrices, "AAPL"))

	found, err := repo.Get(TablePrices, "AAPL", &cachedPrice{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEvictExpired(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := repoAt(db, now)

	require.NoError(t, repo.Store(TablePrices, "OLD", cachedPrice{}, -time.Hour))
	require.NoError(t, repo.Store(TablePrices, "NEW", cachedPrice{}, time.Hour))

	evicted, err := repo.EvictExpired(TablePrices, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), evicted)

	evicted, err = repo.EvictExpired(TablePrices, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), evicted)

	found, err := repo.Get(TablePrices, "NEW", &cachedPrice{})
	require.NoError(t, err)
	assert.True(t, found)
}

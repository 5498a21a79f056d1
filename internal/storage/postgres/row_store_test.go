package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

func sampleRows() []crawler.OutputRow {
	price := 150000.0
	return []crawler.OutputRow{
		{
			InputKeyword:    "kaos polos",
			ProductName:     "Kaos Polos Hitam",
			Price:           &price,
			Currency:        "IDR",
			ImageURL:        "https://images.tokopedia.net/a.jpg",
			ImageLocalPath:  "images/tokopedia/kaos-polos/a.jpg",
			ImageURLs:       "https://images.tokopedia.net/a.jpg",
			ImageLocalPaths: "images/tokopedia/kaos-polos/a.jpg",
			StoreName:       "Toko Kaos",
			ProductURL:      "https://www.tokopedia.com/tokokaos/kaos-polos-hitam",
			SourceSite:      "tokopedia",
			ScrapedAt:       "2024-05-01T10:00:00Z",
		},
		{
			InputKeyword: "kaos polos",
			ProductName:  "Kaos Polos Putih",
			Currency:     "IDR",
			ProductURL:   "https://www.tokopedia.com/tokokaos/kaos-polos-putih",
			SourceSite:   "tokopedia",
		},
	}
}

func TestWriteRowsInsertsInOneTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRowStoreWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres", store.Name())

	rows := sampleRows()
	scraped := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var noTime *time.Time

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO product_refs").
		WithArgs(
			"run-1", 0,
			rows[0].InputKeyword, rows[0].ProductName, rows[0].Description,
			rows[0].Price, rows[0].Currency,
			rows[0].ImageURL, rows[0].ImageLocalPath, rows[0].ImageURLs, rows[0].ImageLocalPaths,
			rows[0].StoreName, rows[0].ProductURL, rows[0].SourceSite,
			&scraped,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO product_refs").
		WithArgs(
			"run-1", 1,
			rows[1].InputKeyword, rows[1].ProductName, "",
			rows[1].Price, "IDR",
			"", "", "", "",
			"", rows[1].ProductURL, "tokopedia",
			noTime,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	loc, err := store.WriteRows(context.Background(), "run-1", rows)
	require.NoError(t, err)
	assert.Equal(t, "product_refs", loc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRowsRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRowStoreWithPool(mock, "refs")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO refs").
		WithArgs(anyArgs(insertColumns)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO refs").
		WithArgs(anyArgs(insertColumns)...).
		WillReturnError(boom)
	mock.ExpectRollback()

	_, err = store.WriteRows(context.Background(), "run-1", sampleRows())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "insert row 1")
	require.NoError(t, mock.ExpectationsWereMet(), "the partial insert is rolled back, never committed")
}

// insertColumns is run_id, position and the thirteen output columns.
const insertColumns = 15

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestWriteRowsRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRowStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = store.WriteRows(context.Background(), "run-1", []crawler.OutputRow{{ScrapedAt: "yesterday"}})
	require.ErrorContains(t, err, "parse scraped_at")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRowsEmptyAndInvalidInput(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRowStoreWithPool(mock, "")
	require.NoError(t, err)

	loc, err := store.WriteRows(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "product_refs", loc)

	_, err = store.WriteRows(context.Background(), "", sampleRows())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRowStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRowStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRowStoreWithPool(mock, "refs; DROP TABLE x")
	require.Error(t, err)

	_, err = NewRowStore(context.Background(), RowStoreConfig{})
	require.ErrorContains(t, err, "db.dsn is required")

	_, err = NewRowStore(context.Background(), RowStoreConfig{DSN: "postgres://u@localhost/db", Table: "bad-name"})
	require.ErrorContains(t, err, "invalid table name")
}

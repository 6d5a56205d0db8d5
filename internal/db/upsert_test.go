package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var placesCfg = UpsertConfig{
	Table:        "geo_cache",
	Columns:      []string{"key", "latitude", "longitude"},
	ConflictKeys: []string{"key"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, placesCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "geo_cache",
		ConflictKeys: []string{"key"},
	}, [][]any{{"paris, france", 48.85}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "geo_cache",
		Columns: []string{"key", "latitude"},
	}, [][]any{{"paris, france", 48.85}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_CopiesThroughTempTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"paris, france", 48.8566, 2.3522}, {"rome, italy", 41.9028, 12.4964}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_geo_cache"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_geo_cache"}, placesCfg.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "geo_cache"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, placesCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_geo_cache"}, placesCfg.Columns).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, placesCfg, [][]any{{"paris, france", 48.8566, 2.3522}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for geo_cache")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	got := UpsertSQL(placesCfg)
	assert.Equal(t,
		`INSERT INTO "geo_cache" ("key", "latitude", "longitude") SELECT "key", "latitude", "longitude" FROM "_tmp_upsert_geo_cache" ON CONFLICT ("key") DO UPDATE SET "latitude" = EXCLUDED."latitude", "longitude" = EXCLUDED."longitude"`,
		got)

	cfg := placesCfg
	cfg.UpdateCols = []string{"latitude"}
	assert.Contains(t, UpsertSQL(cfg), `DO UPDATE SET "latitude" = EXCLUDED."latitude"`)
	assert.NotContains(t, UpsertSQL(cfg), `"longitude" = EXCLUDED`)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.geo_cache", `"public"."geo_cache"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"key", "latitude", "longitude"})
	assert.Equal(t, `"key", "latitude", "longitude"`, result)
}

func TestTempTable(t *testing.T) {
	assert.Equal(t, "_tmp_upsert_public_geo_cache", UpsertConfig{Table: "public.geo_cache"}.TempTable())
}

package sink

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

func sampleResult() crawler.Result {
	return crawler.Result{
		RunID:         "run-1",
		URL:           "http://example.com/a",
		StatusCode:    200,
		ContentLength: 11,
		Depth:         1,
		SourceURL:     "http://example.com",
		FetchedAt:     time.Unix(1700000000, 0).UTC(),
		Content:       "hello world",
	}
}

func TestJSONLWritesOneLinePerResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewJSONL(path, true)
	require.NoError(t, err)

	require.NoError(t, s.Write(t.Context(), sampleResult()))

	failed := sampleResult()
	failed.URL = "http://example.com/b"
	failed.Content = ""
	failed.Error = "http_503"
	failed.Retryable = true
	require.NoError(t, s.Write(t.Context(), failed))
	require.Equal(t, 2, s.Count())
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []crawler.Result
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var res crawler.Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res))
		lines = append(lines, res)
	}
	require.Len(t, lines, 2)
	require.Equal(t, "hello world", lines[0].Content)
	require.Equal(t, "http_503", lines[1].Error)
	require.True(t, lines[1].Retryable)
}

func TestJSONLExcludesContentWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewJSONL(path, false)
	require.NoError(t, err)

	require.NoError(t, s.Write(t.Context(), sampleResult()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "hello world")
	require.Contains(t, string(data), "http://example.com/a")
}

func TestSQLiteInsertsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)

	require.NoError(t, s.Write(t.Context(), sampleResult()))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var url string
	var status, retryable int
	row := db.QueryRow(`SELECT url, status, retryable FROM pages WHERE run_id = ?`, "run-1")
	require.NoError(t, row.Scan(&url, &status, &retryable))
	require.Equal(t, "http://example.com/a", url)
	require.Equal(t, 200, status)
	require.Zero(t, retryable)
}

func TestWARCWritesResponseRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.warc")
	s, err := NewWARC(path)
	require.NoError(t, err)

	require.NoError(t, s.Write(t.Context(), sampleResult()))

	failed := sampleResult()
	failed.Error = "timeout"
	require.NoError(t, s.Write(t.Context(), failed))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "WARC-Type: warcinfo")
	require.Contains(t, text, "WARC-Type: response")
	require.Contains(t, text, "WARC-Target-URI: http://example.com/a")
	require.Contains(t, text, "hello world")
	// one warcinfo plus one response; the failure produced nothing
	require.Equal(t, 2, strings.Count(text, "WARC/1.0"))
}

func TestPostgresInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock, "pages")
	require.NoError(t, err)

	res := sampleResult()
	mock.ExpectExec("INSERT INTO pages").
		WithArgs(
			res.RunID,
			res.URL,
			res.StatusCode,
			res.ContentLength,
			res.Depth,
			res.SourceURL,
			res.FetchedAt.UTC(),
			res.Content,
			res.Error,
			res.Retryable,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Write(context.Background(), res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresWithPool(mock, "pages; DROP TABLE pages")
	require.Error(t, err)
}

func TestMultiFansOut(t *testing.T) {
	dir := t.TempDir()
	jsonl, err := NewJSONL(filepath.Join(dir, "out.jsonl"), true)
	require.NoError(t, err)
	sqlite, err := NewSQLite(filepath.Join(dir, "out.db"))
	require.NoError(t, err)

	m := NewMulti(jsonl, sqlite)
	require.NoError(t, m.Write(t.Context(), sampleResult()))
	require.Equal(t, 1, jsonl.Count())
	require.NoError(t, m.Close())
}

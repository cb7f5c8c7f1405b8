package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/linkscan/internal/model"
)

func TestSQLStore_MySQLCreateScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, DialectMySQL, "wp_")
	at := time.UnixMilli(1700000000000).UTC()
	mock.ExpectExec("INSERT INTO wp_link_scans").
		WithArgs(at.UnixMilli(), "running", 0, 0, 0, `{"scan_depth":2,"max_pages":100,"include_external":false}`, nil).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := s.CreateScan(context.Background(), model.ScanRecord{
		CreatedAt: at,
		Config:    `{"scan_depth":2,"max_pages":100,"include_external":false}`,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ScanID(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresInsertFindingReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, DialectPostgres, "")
	mock.ExpectQuery(`INSERT INTO link_findings .*VALUES \(\$1, \$2, .*\$9\) RETURNING id`).
		WithArgs(int64(3), "https://ex.com/", "https://ex.com/x/", "x", 404, "Page not found", true, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.InsertFinding(context.Background(), model.Finding{
		ScanID:       3,
		SourceURL:    "https://ex.com/",
		TargetURL:    "https://ex.com/x/",
		LinkText:     "x",
		StatusCode:   404,
		ErrorMessage: "Page not found",
		IsBroken:     true,
		FoundAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.FindingID(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresStopOnlyWhileRunning(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, DialectPostgres, "")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE link_scans SET status = $1 WHERE id = $2 AND status = $3`)).
		WithArgs("stopped", int64(5), "running").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM link_scans WHERE id = $1`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err = s.UpdateScan(context.Background(), 5, model.ScanUpdate{Status: model.StatusStopped})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_MySQLListFindingsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, DialectMySQL, "")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM link_findings WHERE is_broken = ? AND scan_id = ? AND status_code IN (?, ?, ?, ?, ?)`)).
		WithArgs(true, int64(2), 301, 302, 303, 307, 308).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY found_at DESC, id DESC LIMIT 5 OFFSET 10`)).
		WithArgs(true, int64(2), 301, 302, 303, 307, 308).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "scan_id", "source_url", "target_url", "link_text", "status_code", "error_message", "is_broken", "is_fixed", "found_at",
		}).AddRow(int64(9), int64(2), "https://ex.com/", "https://old.org/", "old", 301, "Moved Permanently", true, false, int64(1700000000000)))

	rows, total, err := s.ListFindings(context.Background(), model.FindingFilter{
		ScanID: 2, Category: model.CategoryRedirect, Page: 3, PerPage: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, rows, 1)
	assert.Equal(t, 301, rows[0].StatusCode)
	assert.Equal(t, int64(1700000000000), rows[0].FoundAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

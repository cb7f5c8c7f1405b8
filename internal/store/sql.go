package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// Options configures Open.
type Options struct {
	Dialect     Dialect
	DSN         string
	TablePrefix string
}

// SQLStore is a Store backed by database/sql.
type SQLStore struct {
	db       *sql.DB
	dialect  Dialect
	scans    string
	findings string
	mu       sync.RWMutex
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	if opts.Dialect == "" {
		opts.Dialect = DialectSQLite
	}
	if opts.DSN == "" {
		return nil, errors.ConfigError("store dsn is required").Build()
	}
	db, err := sql.Open(opts.Dialect.driverName(), opts.DSN)
	if err != nil {
		return nil, storeErr(err, "failed to open database")
	}
	if opts.Dialect == DialectSQLite {
		// A single connection keeps :memory: databases and pragmas stable.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeErr(err, "failed to connect to database")
	}

	s := New(db, opts.Dialect, opts.TablePrefix)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("Store opened", slog.String("driver", string(opts.Dialect)), logfields.Component("store"))
	return s, nil
}

// New wraps an open database. The schema is not touched; call Migrate.
func New(db *sql.DB, dialect Dialect, tablePrefix string) *SQLStore {
	return &SQLStore{
		db:       db,
		dialect:  dialect,
		scans:    tablePrefix + "link_scans",
		findings: tablePrefix + "link_findings",
	}
}

// Migrate creates missing tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if s.dialect == DialectSQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return storeErr(err, "failed to enable foreign keys")
		}
	}
	for _, stmt := range s.dialect.schema(s.scans, s.findings) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeErr(err, "failed to initialize schema")
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// insert runs an INSERT and returns the generated id.
func (s *SQLStore) insert(ctx context.Context, q string, args ...any) (int64, error) {
	if s.dialect == DialectPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, s.dialect.rebind(q+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLStore) CreateScan(ctx context.Context, rec model.ScanRecord) (model.ScanID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status == "" {
		rec.Status = model.StatusRunning
	}
	id, err := s.insert(ctx,
		`INSERT INTO `+s.scans+` (created_at, status, total_pages, total_links, broken_links, scan_config, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.UnixMilli(), string(rec.Status), rec.TotalPages, rec.TotalLinks, rec.BrokenLinks,
		rec.Config, nullMillis(rec.CompletedAt))
	if err != nil {
		return 0, storeErr(err, "failed to create scan")
	}
	return model.ScanID(id), nil
}

func (s *SQLStore) UpdateScan(ctx context.Context, id model.ScanID, u model.ScanUpdate) error {
	var (
		sets []string
		args []any
	)
	if u.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(u.Status))
	}
	if u.Totals != nil {
		sets = append(sets, "total_pages = ?", "total_links = ?", "broken_links = ?")
		args = append(args, u.Totals.Pages, u.Totals.Links, u.Totals.Broken)
	}
	if u.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, u.CompletedAt.UnixMilli())
	}
	if len(sets) == 0 {
		return nil
	}
	q := `UPDATE ` + s.scans + ` SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, int64(id))
	if u.Status.IsTerminal() {
		q += ` AND status = ?`
		args = append(args, string(model.StatusRunning))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return storeErr(err, "failed to update scan")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// Nothing changed: either the scan is gone or the update was a no-op.
	var count int
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM `+s.scans+` WHERE id = ?`), int64(id)).Scan(&count)
	if err != nil {
		return storeErr(err, "failed to update scan")
	}
	if count == 0 {
		return ErrScanNotFound.WithContext("scan_id", int64(id))
	}
	return nil
}

const scanColumns = `id, created_at, status, total_pages, total_links, broken_links, scan_config, completed_at`

func (s *SQLStore) GetScan(ctx context.Context, id model.ScanID) (model.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+scanColumns+` FROM `+s.scans+` WHERE id = ?`), int64(id))
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return model.ScanRecord{}, ErrScanNotFound.WithContext("scan_id", int64(id))
	}
	if err != nil {
		return model.ScanRecord{}, storeErr(err, "failed to load scan")
	}
	return rec, nil
}

func (s *SQLStore) ListScans(ctx context.Context, f model.ScanFilter) ([]model.ScanRecord, error) {
	q := `SELECT ` + scanColumns + ` FROM ` + s.scans
	var args []any
	if f.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, storeErr(err, "failed to list scans")
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.ScanRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr(err, "failed to read scan")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "failed to list scans")
	}
	return out, nil
}

func (s *SQLStore) InsertFinding(ctx context.Context, f model.Finding) (model.FindingID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.insert(ctx,
		`INSERT INTO `+s.findings+` (scan_id, source_url, target_url, link_text, status_code, error_message, is_broken, is_fixed, found_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(f.ScanID), f.SourceURL, f.TargetURL, f.LinkText, f.StatusCode, f.ErrorMessage,
		f.IsBroken, f.IsFixed, f.FoundAt.UnixMilli())
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryStore, "failed to insert finding").
			WithContext("scan_id", int64(f.ScanID)).
			Build()
	}
	return model.FindingID(id), nil
}

const findingColumns = `id, scan_id, source_url, target_url, link_text, status_code, error_message, is_broken, is_fixed, found_at`

func (s *SQLStore) GetFinding(ctx context.Context, id model.FindingID) (model.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+findingColumns+` FROM `+s.findings+` WHERE id = ?`), int64(id))
	fd, err := scanFinding(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return model.Finding{}, ErrFindingNotFound.WithContext("finding_id", int64(id))
	}
	if err != nil {
		return model.Finding{}, storeErr(err, "failed to load finding")
	}
	return fd, nil
}

// findingWhere builds the WHERE clause shared by the count and page queries.
func findingWhere(f model.FindingFilter) (string, []any) {
	conds := []string{"is_broken = ?"}
	args := []any{true}
	if f.ScanID != 0 {
		conds = append(conds, "scan_id = ?")
		args = append(args, int64(f.ScanID))
	}
	switch f.Category {
	case model.CategoryNotFound:
		conds = append(conds, "status_code = ?")
		args = append(args, 404)
	case model.CategoryRedirect:
		marks := make([]string, len(model.RedirectCodes))
		for i, code := range model.RedirectCodes {
			marks[i] = "?"
			args = append(args, code)
		}
		conds = append(conds, "status_code IN ("+strings.Join(marks, ", ")+")")
	case model.CategoryTimeout:
		conds = append(conds, "LOWER(error_message) LIKE ?")
		args = append(args, "%timeout%")
	}
	if f.Search != "" {
		like := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		cols := []string{"target_url", "source_url", "link_text", "error_message"}
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = "LOWER(" + c + ") LIKE ? ESCAPE '!'"
			args = append(args, like)
		}
		conds = append(conds, "("+strings.Join(parts, " OR ")+")")
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

func (s *SQLStore) ListFindings(ctx context.Context, f model.FindingFilter) ([]model.Finding, int, error) {
	f = f.Normalize()
	where, args := findingWhere(f)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM `+s.findings+where), args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "failed to count findings")
	}
	q := `SELECT ` + findingColumns + ` FROM ` + s.findings + where +
		fmt.Sprintf(" ORDER BY found_at DESC, id DESC LIMIT %d OFFSET %d", f.PerPage, f.Offset())
	out, err := s.queryFindings(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *SQLStore) BrokenFindings(ctx context.Context, scanID model.ScanID) ([]model.Finding, error) {
	where, args := findingWhere(model.FindingFilter{ScanID: scanID})
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryFindings(ctx, `SELECT `+findingColumns+` FROM `+s.findings+where+` ORDER BY found_at DESC, id DESC`, args...)
}

func (s *SQLStore) queryFindings(ctx context.Context, q string, args ...any) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, storeErr(err, "failed to query findings")
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.Finding, 0)
	for rows.Next() {
		fd, err := scanFinding(rows)
		if err != nil {
			return nil, storeErr(err, "failed to read finding")
		}
		out = append(out, fd)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "failed to query findings")
	}
	return out, nil
}

func (s *SQLStore) SetFindingFlags(ctx context.Context, id model.FindingID, flags model.FindingFlags) error {
	var (
		sets []string
		args []any
	)
	if flags.IsBroken != nil {
		sets = append(sets, "is_broken = ?")
		args = append(args, *flags.IsBroken)
	}
	if flags.IsFixed != nil {
		sets = append(sets, "is_fixed = ?")
		args = append(args, *flags.IsFixed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sets) > 0 {
		args = append(args, int64(id))
		q := `UPDATE ` + s.findings + ` SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		res, err := s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
		if err != nil {
			return storeErr(err, "failed to update finding")
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
	}
	var count int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM `+s.findings+` WHERE id = ?`), int64(id)).Scan(&count)
	if err != nil {
		return storeErr(err, "failed to update finding")
	}
	if count == 0 {
		return ErrFindingNotFound.WithContext("finding_id", int64(id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (model.ScanRecord, error) {
	var (
		rec       model.ScanRecord
		id        int64
		created   int64
		status    string
		config    sql.NullString
		completed sql.NullInt64
	)
	if err := r.Scan(&id, &created, &status, &rec.TotalPages, &rec.TotalLinks, &rec.BrokenLinks, &config, &completed); err != nil {
		return rec, err
	}
	rec.ID = model.ScanID(id)
	rec.CreatedAt = fromMillis(created)
	rec.Status = model.ScanStatus(status)
	rec.Config = config.String
	if completed.Valid {
		t := fromMillis(completed.Int64)
		rec.CompletedAt = &t
	}
	return rec, nil
}

func scanFinding(r rowScanner) (model.Finding, error) {
	var (
		fd      model.Finding
		id      int64
		scanID  int64
		text    sql.NullString
		errMsg  sql.NullString
		foundAt int64
	)
	if err := r.Scan(&id, &scanID, &fd.SourceURL, &fd.TargetURL, &text, &fd.StatusCode, &errMsg, &fd.IsBroken, &fd.IsFixed, &foundAt); err != nil {
		return fd, err
	}
	fd.ID = model.FindingID(id)
	fd.ScanID = model.ScanID(scanID)
	fd.LinkText = text.String
	fd.ErrorMessage = errMsg.String
	fd.FoundAt = fromMillis(foundAt)
	return fd, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Options{Dialect: DialectSQLite, DSN: ":memory:", TablePrefix: "wp_"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": openSQLite(t),
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newScan(t *testing.T, s Store, at time.Time) model.ScanID {
	t.Helper()
	rec, err := model.NewScan(model.ScanRequest{Depth: model.DepthPagesPosts, MaxPages: 50}, at)
	require.NoError(t, err)
	id, err := s.CreateScan(context.Background(), rec)
	require.NoError(t, err)
	return id
}

func TestStore_ScanLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := newScan(t, s, base)
			assert.Positive(t, int64(id))

			rec, err := s.GetScan(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.StatusRunning, rec.Status)
			assert.True(t, rec.CreatedAt.Equal(base))
			assert.Nil(t, rec.CompletedAt)
			req, err := rec.Request()
			require.NoError(t, err)
			assert.Equal(t, 50, req.MaxPages)

			done := base.Add(time.Minute)
			require.NoError(t, s.UpdateScan(ctx, id, model.ScanUpdate{
				Status:      model.StatusCompleted,
				Totals:      &model.ScanTotals{Pages: 3, Links: 12, Broken: 2},
				CompletedAt: &done,
			}))

			rec, err = s.GetScan(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.StatusCompleted, rec.Status)
			assert.Equal(t, 3, rec.TotalPages)
			assert.Equal(t, 12, rec.TotalLinks)
			assert.Equal(t, 2, rec.BrokenLinks)
			require.NotNil(t, rec.CompletedAt)
			assert.True(t, rec.CompletedAt.Equal(done))
		})
	}
}

func TestStore_TerminalStatusIsFinal(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := newScan(t, s, base)

			stopAt := base.Add(time.Second)
			require.NoError(t, s.UpdateScan(ctx, id, model.ScanUpdate{Status: model.StatusStopped, CompletedAt: &stopAt}))

			later := base.Add(time.Hour)
			require.NoError(t, s.UpdateScan(ctx, id, model.ScanUpdate{
				Status:      model.StatusCompleted,
				Totals:      &model.ScanTotals{Pages: 9},
				CompletedAt: &later,
			}))

			rec, err := s.GetScan(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.StatusStopped, rec.Status)
			assert.Zero(t, rec.TotalPages)
			assert.True(t, rec.CompletedAt.Equal(stopAt))
		})
	}
}

func TestStore_UnknownScan(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.GetScan(ctx, 404)
			assert.ErrorIs(t, err, ErrScanNotFound)
			assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

			err = s.UpdateScan(ctx, 404, model.ScanUpdate{Status: model.StatusStopped})
			assert.ErrorIs(t, err, ErrScanNotFound)

			_, err = s.InsertFinding(ctx, model.Finding{ScanID: 404, SourceURL: "a", TargetURL: "b", IsBroken: true, FoundAt: base})
			assert.Error(t, err)
		})
	}
}

func TestStore_ListScans(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := newScan(t, s, base)
			second := newScan(t, s, base.Add(time.Minute))
			third := newScan(t, s, base.Add(2*time.Minute))
			require.NoError(t, s.UpdateScan(ctx, second, model.ScanUpdate{Status: model.StatusStopped}))

			all, err := s.ListScans(ctx, model.ScanFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []model.ScanID{third, second, first}, []model.ScanID{all[0].ID, all[1].ID, all[2].ID})

			running, err := s.ListScans(ctx, model.ScanFilter{Status: model.StatusRunning, Limit: 1})
			require.NoError(t, err)
			require.Len(t, running, 1)
			assert.Equal(t, third, running[0].ID)
		})
	}
}

func seedFindings(t *testing.T, s Store, scan model.ScanID) []model.FindingID {
	t.Helper()
	rows := []model.Finding{
		{SourceURL: "https://ex.com/a/", TargetURL: "https://ex.com/missing/", LinkText: "Missing page", StatusCode: 404, ErrorMessage: "Page not found"},
		{SourceURL: "https://ex.com/a/", TargetURL: "https://other.org/moved", LinkText: "Moved", StatusCode: 301, ErrorMessage: "Moved Permanently"},
		{SourceURL: "https://ex.com/b/", TargetURL: "https://slow.org/", LinkText: "Slow_site", ErrorMessage: "context deadline exceeded (Client.Timeout exceeded)"},
		{SourceURL: "https://ex.com/b/", TargetURL: "https://gone.org/", LinkText: "100% gone", StatusCode: 410, ErrorMessage: "Gone"},
	}
	ids := make([]model.FindingID, 0, len(rows))
	for i, r := range rows {
		r.ScanID = scan
		r.IsBroken = true
		r.FoundAt = base.Add(time.Duration(i) * time.Second)
		id, err := s.InsertFinding(context.Background(), r)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestStore_ListFindings(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scan := newScan(t, s, base)
			other := newScan(t, s, base)
			ids := seedFindings(t, s, scan)
			seedFindings(t, s, other)

			rows, total, err := s.ListFindings(ctx, model.FindingFilter{ScanID: scan, PerPage: 3})
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			require.Len(t, rows, 3)
			assert.Equal(t, ids[3], rows[0].ID, "newest first")

			rows, _, err = s.ListFindings(ctx, model.FindingFilter{ScanID: scan, PerPage: 3, Page: 2})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, ids[0], rows[0].ID)

			_, total, err = s.ListFindings(ctx, model.FindingFilter{})
			require.NoError(t, err)
			assert.Equal(t, 8, total)

			cases := []struct {
				filter model.FindingFilter
				want   model.FindingID
			}{
				{model.FindingFilter{Category: model.CategoryNotFound}, ids[0]},
				{model.FindingFilter{Category: model.CategoryRedirect}, ids[1]},
				{model.FindingFilter{Category: model.CategoryTimeout}, ids[2]},
				{model.FindingFilter{Search: "OTHER.org"}, ids[1]},
				{model.FindingFilter{Search: "100%"}, ids[3]},
				{model.FindingFilter{Search: "w_s"}, ids[2]},
			}
			for _, tc := range cases {
				tc.filter.ScanID = scan
				rows, total, err := s.ListFindings(ctx, tc.filter)
				require.NoError(t, err)
				require.Equal(t, 1, total, "%+v", tc.filter)
				assert.Equal(t, tc.want, rows[0].ID)
			}

			rows, total, err = s.ListFindings(ctx, model.FindingFilter{ScanID: scan, Search: "nothing-like-this"})
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Empty(t, rows)
		})
	}
}

func TestStore_FindingFlags(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scan := newScan(t, s, base)
			ids := seedFindings(t, s, scan)

			fixed, err := model.FlagsFor(model.FixReplace, "https://ex.com/new/")
			require.NoError(t, err)
			require.NoError(t, s.SetFindingFlags(ctx, ids[0], fixed))
			fd, err := s.GetFinding(ctx, ids[0])
			require.NoError(t, err)
			assert.True(t, fd.IsFixed)
			assert.True(t, fd.IsBroken)

			ignored, err := model.FlagsFor(model.FixIgnore, "")
			require.NoError(t, err)
			require.NoError(t, s.SetFindingFlags(ctx, ids[1], ignored))
			// Repeating an update is not an error.
			require.NoError(t, s.SetFindingFlags(ctx, ids[1], ignored))

			broken, err := s.BrokenFindings(ctx, scan)
			require.NoError(t, err)
			require.Len(t, broken, 3)
			assert.Equal(t, ids[3], broken[0].ID)
			for _, fd := range broken {
				assert.NotEqual(t, ids[1], fd.ID)
			}

			err = s.SetFindingFlags(ctx, 999, ignored)
			assert.ErrorIs(t, err, ErrFindingNotFound)
			_, err = s.GetFinding(ctx, 999)
			assert.ErrorIs(t, err, ErrFindingNotFound)
		})
	}
}

func TestParseDialect(t *testing.T) {
	for raw, want := range map[string]Dialect{
		"":           DialectSQLite,
		"sqlite3":    DialectSQLite,
		"MySQL":      DialectMySQL,
		"mariadb":    DialectMySQL,
		"postgresql": DialectPostgres,
	} {
		got, err := ParseDialect(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, q, DialectMySQL.rebind(q))
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", DialectPostgres.rebind(q))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "100!% a!_b !!", escapeLike("100% a_b !"))
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{Dialect: DialectSQLite})
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

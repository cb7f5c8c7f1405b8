package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/linkscan/internal/config"
	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
	"git.home.luguber.info/inful/linkscan/internal/store"
)

// ScansCmd implements the 'scans' command.
type ScansCmd struct {
	Status string `help:"Only scans with this status (running, completed, stopped)"`
	Limit  int    `short:"n" help:"Number of scans to show" default:"20"`
}

func (s *ScansCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return withStore(context.Background(), cfg, func(st store.Store) error {
		return s.run(context.Background(), st, os.Stdout)
	})
}

func (s *ScansCmd) run(ctx context.Context, st store.Store, out io.Writer) error {
	filter := model.ScanFilter{Status: model.ScanStatus(s.Status), Limit: s.Limit}
	if filter.Status != "" && !filter.Status.Valid() {
		return errors.ValidationError("unknown scan status").WithContext("status", s.Status).Build()
	}
	scans, err := st.ListScans(ctx, filter)
	if err != nil {
		return err
	}
	renderScans(out, scans)
	return nil
}

// FindingsCmd implements the 'findings' command.
type FindingsCmd struct {
	ScanID  int64  `name:"scan" help:"Only findings of this scan"`
	Status  string `help:"Filter: all, 404, redirect, timeout" default:"all"`
	Search  string `short:"s" help:"Substring match on URLs, link text and error"`
	Page    int    `help:"Page number" default:"1"`
	PerPage int    `help:"Findings per page" default:"20"`
}

func (f *FindingsCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return withStore(context.Background(), cfg, func(st store.Store) error {
		return f.run(context.Background(), st, os.Stdout)
	})
}

func (f *FindingsCmd) run(ctx context.Context, st store.Store, out io.Writer) error {
	category, err := model.ParseFindingCategory(f.Status)
	if err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "invalid status filter").Build()
	}
	filter := model.FindingFilter{
		ScanID:   model.ScanID(f.ScanID),
		Category: category,
		Search:   f.Search,
		Page:     f.Page,
		PerPage:  f.PerPage,
	}.Normalize()

	rows, total, err := st.ListFindings(ctx, filter)
	if err != nil {
		return err
	}
	page := model.NewFindingPage(rows, total, filter)
	renderFindings(out, page.Findings)
	_, _ = fmt.Fprintf(out, "Page %d of %d (%d findings)\n", page.Page, max(page.TotalPages, 1), page.Total)
	return nil
}

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	ScanID int64  `name:"scan" help:"Only findings of this scan"`
	Format string `short:"f" help:"Output format" enum:"csv,json" default:"csv"`
	Output string `short:"o" help:"Write to file instead of stdout" type:"path"`
}

func (e *ExportCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	out := io.Writer(os.Stdout)
	if e.Output != "" {
		file, err := os.Create(e.Output)
		if err != nil {
			return errors.WrapError(err, errors.CategoryRuntime, "failed to create export file").
				WithContext("path", e.Output).Build()
		}
		defer func() { _ = file.Close() }()
		out = file
	}
	return withStore(context.Background(), cfg, func(st store.Store) error {
		return e.run(context.Background(), st, out)
	})
}

func (e *ExportCmd) run(ctx context.Context, st store.Store, out io.Writer) error {
	findings, err := st.BrokenFindings(ctx, model.ScanID(e.ScanID))
	if err != nil {
		return err
	}
	rows := make([]model.ExportRow, len(findings))
	for i, f := range findings {
		rows[i] = f.ExportRow()
	}
	if e.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return renderExportCSV(out, rows)
}

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, cfg *config.Config, fn func(store.Store) error) error {
	dialect, err := store.ParseDialect(string(cfg.Store.Driver))
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, store.Options{Dialect: dialect, DSN: cfg.Store.DSN, TablePrefix: cfg.Store.TablePrefix})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(st)
}

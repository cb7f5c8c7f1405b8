package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/linkscan/internal/config"
	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// ScanCmd implements the 'scan' command.
type ScanCmd struct {
	Depth        int  `short:"d" help:"Scan depth 1-4, overrides scan.depth"`
	MaxPages     int  `short:"m" help:"Maximum documents to scan, overrides scan.max_pages"`
	External     bool `short:"e" help:"Also probe external links"`
	FailOnBroken bool `help:"Exit non-zero when broken links were found"`
}

func (s *ScanCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return s.run(ctx, cfg, os.Stdout)
}

func (s *ScanCmd) request(cfg *config.Config) (model.ScanRequest, error) {
	req := cfg.ScanRequest()
	if s.Depth != 0 {
		req.Depth = model.Depth(s.Depth)
		if !req.Depth.Valid() {
			return req, errors.ValidationError("depth must be between 1 and 4").
				WithContext("depth", s.Depth).Build()
		}
	}
	if s.MaxPages < 0 {
		return req, errors.ValidationError("max-pages must not be negative").Build()
	}
	if s.MaxPages > 0 {
		req.MaxPages = s.MaxPages
	}
	req.IncludeExternal = req.IncludeExternal || s.External
	return req, nil
}

// run starts a scan and blocks until it ends. Cancelling ctx stops the scan.
func (s *ScanCmd) run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	req, err := s.request(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	defer func() { _ = a.close(bg) }()

	id, err := a.coordinator.Start(ctx, req)
	if err != nil {
		return err
	}

	if err := a.coordinator.Wait(ctx, id); err != nil {
		slog.Info("Interrupted, stopping scan", logfields.ScanID(int64(id)))
		if stopErr := a.coordinator.Stop(bg, id); stopErr != nil {
			return stopErr
		}
		_ = a.coordinator.Wait(bg, id)
	}

	rec, err := a.store.GetScan(bg, id)
	if err != nil {
		return err
	}
	findings, err := a.store.BrokenFindings(bg, id)
	if err != nil {
		return err
	}
	renderScans(out, []model.ScanRecord{rec})
	if len(findings) > 0 {
		_, _ = fmt.Fprintln(out)
		renderFindings(out, findings)
	}

	if s.FailOnBroken && rec.BrokenLinks > 0 {
		return errors.ScanError("broken links found").
			WithContext("scan_id", int64(id)).
			WithContext("broken_links", rec.BrokenLinks).
			Build()
	}
	return nil
}

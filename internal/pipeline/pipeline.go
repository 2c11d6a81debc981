package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/felo/eml2doc/internal/convert"
	"github.com/felo/eml2doc/internal/db"
	"github.com/felo/eml2doc/internal/extract"
	"github.com/felo/eml2doc/internal/logger"
	"github.com/felo/eml2doc/internal/parser"
	"github.com/felo/eml2doc/internal/render"
	"github.com/felo/eml2doc/internal/scanner"
)

// Options controls a conversion run.
type Options struct {
	Format       convert.Format
	OutputDir    string
	Combined     bool
	CombinedName string
	Title        string
	Workers      int
	// KeepGoing converts every source and reports all failures at the end.
	KeepGoing bool
	// SkipUnchanged skips sources whose bytes match the catalog and whose
	// output still exists. Per-source mode only.
	SkipUnchanged bool
}

// Runner converts every source a scanner finds
type Runner struct {
	scanner   *scanner.Scanner
	extractor *extract.Extractor
	catalog   *db.DB
	log       logger.Logger
	opts      Options
	newID     func() string
}

// New creates a runner. catalog may be nil.
func New(sc *scanner.Scanner, x *extract.Extractor, catalog *db.DB, log logger.Logger, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Title == "" {
		opts.Title = render.DefaultTitle
	}
	if log == nil {
		log = logger.NopLogger()
	}
	return &Runner{
		scanner:   sc,
		extractor: x,
		catalog:   catalog,
		log:       log,
		opts:      opts,
		newID:     func() string { return uuid.NewString() },
	}
}

// Result contains statistics about a run
type Result struct {
	RunID         string
	TotalFound    int
	Converted     int
	Skipped       int
	Failed        int
	Outputs       []string
	FailedSources []string
}

type status int

const (
	statusPending status = iota
	statusConverted
	statusSkipped
	statusFailed
)

// outcome is what a worker produced for one source, slotted by scan position.
type outcome struct {
	source scanner.Source
	status status
	hash   string
	size   int64
	output string
	msg    *extract.Message
	err    error
}

// Run scans, converts and records. Without KeepGoing the first failure stops
// the run and is returned. With KeepGoing every failure is returned combined.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	sources, err := r.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	if err := os.MkdirAll(r.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &Result{
		RunID:         r.newID(),
		TotalFound:    len(sources),
		FailedSources: make([]string, 0),
	}
	ctx = logger.WithFields(ctx, "run_id", result.RunID, "format", string(r.opts.Format))

	run := &db.Run{
		ID:       result.RunID,
		InputDir: r.scanner.GetRootPath(),
		Format:   string(r.opts.Format),
		Combined: r.opts.Combined,
		Total:    len(sources),
	}
	if r.catalog != nil {
		if err := r.catalog.StartRun(run); err != nil {
			return nil, err
		}
	}

	r.log.InfowCtx(ctx, "starting conversion",
		"input_dir", run.InputDir, "sources", len(sources), "workers", r.opts.Workers, "combined", r.opts.Combined)

	var outcomes []*outcome
	var runErr error
	if r.opts.Combined {
		outcomes, runErr = r.runCombined(ctx, sources, result)
	} else {
		outcomes, runErr = r.runEach(ctx, sources, result)
	}

	for _, o := range outcomes {
		switch o.status {
		case statusConverted:
			result.Converted++
		case statusSkipped:
			result.Skipped++
		case statusFailed:
			result.Failed++
			result.FailedSources = append(result.FailedSources, o.source.Name)
		}
	}

	if r.catalog != nil {
		if err := r.record(outcomes, result.RunID); err != nil {
			runErr = multierr.Append(runErr, err)
		}
		run.Converted, run.Skipped, run.Failed = result.Converted, result.Skipped, result.Failed
		run.Status = db.RunComplete
		if runErr != nil {
			run.Status = db.RunFailed
		}
		if err := r.catalog.FinishRun(run); err != nil {
			runErr = multierr.Append(runErr, err)
		}
	}

	r.log.InfowCtx(ctx, "conversion complete",
		"converted", result.Converted, "skipped", result.Skipped, "failed", result.Failed)

	return result, runErr
}

// runEach writes one document per source.
func (r *Runner) runEach(ctx context.Context, sources []scanner.Source, result *Result) ([]*outcome, error) {
	ext := r.opts.Format.Ext()
	outcomes := make([]*outcome, len(sources))
	for i, src := range sources {
		outcomes[i] = &outcome{
			source: src,
			output: filepath.Join(r.opts.OutputDir, src.Base+"."+ext),
		}
	}

	known := map[string]string{}
	if r.opts.SkipUnchanged && r.catalog != nil {
		paths := make([]string, len(outcomes))
		for i, o := range outcomes {
			paths[i] = absPath(o.output)
		}
		var err error
		if known, err = r.catalog.ContentHashes(string(r.opts.Format), paths); err != nil {
			return nil, err
		}
	}

	err := r.forEach(ctx, outcomes, func(ctx context.Context, o *outcome) error {
		data, err := r.read(o)
		if err != nil {
			return err
		}

		if prev, ok := known[absPath(o.output)]; ok && prev == o.hash && fileExists(o.output) {
			o.status = statusSkipped
			r.log.Debugw("unchanged, skipping", append(logger.Fields(ctx), "source", o.source.Name)...)
			return nil
		}

		if o.msg, err = r.extractor.Extract(o.source.Name, bytes.NewReader(data)); err != nil {
			return err
		}
		doc, err := render.AggregateTitled(r.opts.Title, []render.Entry{{Source: o.source.Name, Message: o.msg}})
		if err != nil {
			return err
		}
		if err := writeDocument(r.opts.Format, doc, o.output); err != nil {
			return fmt.Errorf("%s: %w", o.source.Name, err)
		}

		o.status = statusConverted
		r.log.InfowCtx(ctx, "converted", "source", o.source.Name, "output", o.output)
		return nil
	})

	for _, o := range outcomes {
		if o.status == statusConverted {
			result.Outputs = append(result.Outputs, o.output)
		}
	}
	return outcomes, err
}

// runCombined extracts every source, then writes one document in scan order.
func (r *Runner) runCombined(ctx context.Context, sources []scanner.Source, result *Result) ([]*outcome, error) {
	output := filepath.Join(r.opts.OutputDir, r.opts.CombinedName+"."+r.opts.Format.Ext())
	outcomes := make([]*outcome, len(sources))
	for i, src := range sources {
		outcomes[i] = &outcome{source: src, output: output}
	}

	err := r.forEach(ctx, outcomes, func(ctx context.Context, o *outcome) error {
		data, err := r.read(o)
		if err != nil {
			return err
		}
		if o.msg, err = r.extractor.Extract(o.source.Name, bytes.NewReader(data)); err != nil {
			return err
		}
		// Checked per source so one bad Date header fails only its source.
		if _, err := parser.ParseDate(o.msg.Date); err != nil {
			return &render.FormatError{Source: o.source.Name, Value: o.msg.Date, Err: err}
		}
		o.status = statusConverted
		return nil
	})
	if err != nil && (!r.opts.KeepGoing || ctx.Err() != nil) {
		return outcomes, err
	}

	var entries []render.Entry
	for _, o := range outcomes {
		if o.status == statusConverted {
			entries = append(entries, render.Entry{Source: o.source.Name, Message: o.msg})
		}
	}

	doc, aggErr := render.AggregateTitled(r.opts.Title, entries)
	if aggErr == nil {
		aggErr = writeDocument(r.opts.Format, doc, output)
	}
	if aggErr != nil {
		for _, o := range outcomes {
			if o.status == statusConverted {
				o.status = statusFailed
			}
		}
		return outcomes, multierr.Append(err, aggErr)
	}

	result.Outputs = append(result.Outputs, output)
	r.log.InfowCtx(ctx, "converted", "sources", len(entries), "output", output)
	return outcomes, err
}

// forEach runs fn over outcomes on a bounded pool. A failing fn marks its
// outcome failed. Without KeepGoing the first failure cancels the rest.
// Cancelling ctx always yields an error.
func (r *Runner) forEach(ctx context.Context, outcomes []*outcome, fn func(context.Context, *outcome) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, o := range outcomes {
		o := o // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			sctx := logger.WithFields(ctx, "source", o.source.Name)
			if err := fn(sctx, o); err != nil {
				o.status = statusFailed
				o.err = err
				r.log.ErrorwCtx(sctx, "conversion failed", "error", err)
				if !r.opts.KeepGoing {
					return err
				}
			}
			return nil
		})
	}

	errs := g.Wait()
	if r.opts.KeepGoing {
		errs = nil
		for _, o := range outcomes {
			errs = multierr.Append(errs, o.err)
		}
	}

	// Sources skipped because the caller gave up are not a success.
	if err := ctx.Err(); err != nil && !errors.Is(errs, err) {
		errs = multierr.Append(errs, fmt.Errorf("conversion interrupted: %w", err))
	}
	return errs
}

// read loads the raw message and fills in its hash and size.
func (r *Runner) read(o *outcome) ([]byte, error) {
	rc, err := o.source.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.source.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read: %w", o.source.Name, err)
	}
	sum := sha256.Sum256(data)
	o.hash = hex.EncodeToString(sum[:])
	o.size = int64(len(data))
	return data, nil
}

// record stores converted outcomes in the catalog, in scan order.
func (r *Runner) record(outcomes []*outcome, runID string) error {
	var records []*db.Record
	position := 0
	for _, o := range outcomes {
		if o.status != statusConverted {
			continue
		}
		position++

		m := o.msg
		c := &db.Conversion{
			SourceName:      o.source.Name,
			SourcePath:      absPath(o.source.Path),
			Entry:           o.source.Entry,
			Format:          string(r.opts.Format),
			OutputPath:      absPath(o.output),
			ContentHash:     o.hash,
			MessageID:       m.MessageID,
			Subject:         m.Subject,
			Sender:          m.From,
			Date:            db.NewNullTime(m.SentAt),
			RawDate:         m.Date,
			ReplyCount:      m.ReplyCount,
			BodyTextPreview: m.Text,
			FileSize:        o.size,
			RunID:           runID,
		}
		if r.opts.Combined {
			c.Anchor = render.Anchor(position)
		}

		atts := make([]*db.Attachment, 0, len(m.Attachments))
		for _, d := range m.Attachments {
			atts = append(atts, &db.Attachment{Filename: d.Filename, Path: absPath(d.Path), Size: d.Size})
		}
		records = append(records, &db.Record{Conversion: c, Attachments: atts})
	}

	_, err := r.catalog.RecordConversions(records)
	return err
}

// writeDocument converts doc into path through a temporary file so a failed
// conversion never leaves a truncated output behind.
func writeDocument(format convert.Format, doc *render.Document, path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = convert.Write(format, doc, w); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Package mirror computes the dependency closure of a set of requirements
// and mirrors every selected file into a local index tree.
//
// The engine works in waves. Wave 0 holds the top-level requirements; each
// later wave holds the dependencies discovered by the previous one that were
// not seen before in the run. A wave is fully drained before the next one is
// formed, and results are merged in queue order, so logs, the provenance
// graph and the next queue are deterministic at any concurrency.
//
// Per requirement the engine fetches the project listing, selects files,
// then downloads and extracts each file independently. A failing file is
// logged and counted without affecting its siblings.
//
// Error policy:
//   - PROTOCOL_ERROR and INVALID_CONFIG abort the run.
//   - NO_MATCH, NOT_FOUND and TRANSPORT_ERROR on a listing abort the run for
//     top-level requirements and skip the edge for dependencies.
//   - Download and extraction failures are contained to their file.
package mirror

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/wheelhouse/pkg/dist"
	"github.com/matzehuels/wheelhouse/pkg/download"
	"github.com/matzehuels/wheelhouse/pkg/env"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations/simple"
	"github.com/matzehuels/wheelhouse/pkg/metadata"
	"github.com/matzehuels/wheelhouse/pkg/observability"
	"github.com/matzehuels/wheelhouse/pkg/provenance"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
	"github.com/matzehuels/wheelhouse/pkg/selector"
)

// MetadataSuffix names the core-metadata sidecar written beside each file.
const MetadataSuffix = ".metadata"

// Index lists the files of a project.
type Index interface {
	Fetch(ctx context.Context, project string) (*simple.Catalog, error)
}

// Fetcher places a verified copy of a file at target.
type Fetcher interface {
	Ensure(ctx context.Context, f dist.File, target string) (download.Result, error)
}

// Config configures an Engine.
type Config struct {
	Index        Index
	Fetcher      Fetcher
	Environments *env.Set
	Selector     selector.Options

	// IndexDir is the root of the mirror tree.
	IndexDir string

	// Concurrency bounds the requirements resolved in parallel within a
	// wave. Zero or one resolves sequentially.
	Concurrency int

	// FileConcurrency bounds the files of one requirement processed in
	// parallel. Zero or one processes them sequentially.
	FileConcurrency int

	// Logger receives progress. Nil discards it.
	Logger *log.Logger
}

// Engine runs mirror passes. An Engine may run several times; each run has
// its own processed set.
type Engine struct {
	cfg    Config
	logger *log.Logger
}

// New validates cfg and returns an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Index == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mirror: index client is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mirror: fetcher is required")
	}
	if cfg.Environments == nil || cfg.Environments.Len() == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mirror: at least one environment is required")
	}
	if cfg.IndexDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mirror: index directory is required")
	}
	cfg.Concurrency = max(cfg.Concurrency, 1)
	cfg.FileConcurrency = max(cfg.FileConcurrency, 1)

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Run mirrors reqs and their transitive dependencies. Duplicate top-level
// requirements are mirrored once. The returned report is non-nil even on
// error.
func (e *Engine) Run(ctx context.Context, reqs []requirement.Requirement) (*Report, error) {
	r := &run{
		Engine:    e,
		processed: NewProcessedSet(),
		files:     make(map[string]*fileTask),
		known:     make(map[string]bool),
		report: &Report{
			RunID: uuid.NewString(),
			Graph: provenance.New(),
		},
	}
	r.logger = e.logger.With("run", r.report.RunID[:8])

	start := time.Now()
	err := r.loop(ctx, reqs)
	r.report.Duration = time.Since(start)
	if err == nil {
		r.logger.Info("mirror complete",
			"resolved", len(r.report.Resolved),
			"skipped", len(r.report.Skipped),
			"fetched", r.report.Fetched,
			"reused", r.report.Reused,
			"failed", r.report.Failed(),
			"duration", r.report.Duration)
	}
	return r.report, err
}

// =============================================================================
// Run state
// =============================================================================

type run struct {
	*Engine
	logger    *log.Logger
	processed *ProcessedSet
	report    *Report

	// known holds every requirement string queued in this run. Only the
	// merge step touches it.
	known map[string]bool

	mu    sync.Mutex
	files map[string]*fileTask
}

type item struct {
	req        requirement.Requirement
	key        string
	requiredBy string
	topLevel   bool
}

type outcome struct {
	item
	state  State
	reason string
	deps   *requirement.Set
	files  []fileOutcome
	err    error
	dup    bool
}

type fileOutcome struct {
	filename string
	result   download.Result
	owner    bool
	err      error
}

// fileTask lets requirements that select the same file share one download.
type fileTask struct {
	done   chan struct{}
	result download.Result
	record *metadata.Record
	err    error
}

func (r *run) loop(ctx context.Context, reqs []requirement.Requirement) error {
	var queue []item
	for _, req := range reqs {
		if it, ok := r.enqueue(req, "", 0); ok {
			queue = append(queue, it)
		}
	}

	for wave := 0; len(queue) > 0; wave++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.report.Waves = wave + 1
		r.logger.Debug("wave", "index", wave, "requirements", len(queue))

		outcomes, err := r.resolveWave(ctx, queue)
		if err != nil {
			return err
		}

		var next []item
		for _, out := range outcomes {
			next = append(next, r.merge(out, wave+1)...)
		}
		queue = next
	}
	return nil
}

// enqueue registers req in the provenance graph and reports whether it is
// new to this run.
func (r *run) enqueue(req requirement.Requirement, requiredBy string, row int) (item, bool) {
	key := req.String()
	if r.known[key] {
		return item{}, false
	}
	r.known[key] = true
	_ = r.report.Graph.AddNode(provenance.Node{ID: key, Row: row})
	return item{req: req, key: key, requiredBy: requiredBy, topLevel: requiredBy == ""}, true
}

func (r *run) resolveWave(ctx context.Context, queue []item) ([]outcome, error) {
	outcomes := make([]outcome, len(queue))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, it := range queue {
		g.Go(func() error {
			outcomes[i] = r.resolve(gctx, it)
			return outcomes[i].err
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, out := range outcomes {
			if out.err != nil {
				return nil, out.err
			}
		}
		return nil, err
	}
	return outcomes, nil
}

// merge folds one outcome into the report and returns the new items it
// contributes to the next wave.
func (r *run) merge(out outcome, row int) []item {
	if out.dup {
		return nil
	}
	// A shared target is counted once, under the requirement that owned it.
	for _, f := range out.files {
		switch {
		case !f.owner:
		case f.err != nil:
			r.report.Failures = append(r.report.Failures, Failure{Requirement: out.key, Filename: f.filename, Err: f.err})
		case f.result.Fetched:
			r.report.Fetched++
		default:
			r.report.Reused++
		}
		if f.err == nil && f.owner && !f.result.Verified {
			r.report.Unverified++
		}
	}

	switch out.state {
	case StateResolved:
		r.report.Resolved = append(r.report.Resolved, out.key)
	case StateSkipped:
		r.report.Skipped = append(r.report.Skipped, Skip{Requirement: out.key, RequiredBy: out.requiredBy, Reason: out.reason})
	}
	r.report.Graph.SetStatus(out.key, graphStatus(out.state), len(out.files))

	var next []item
	for _, dep := range out.deps.Items() {
		if it, ok := r.enqueue(dep, out.key, row); ok {
			next = append(next, it)
		}
		_ = r.report.Graph.AddEdge(out.key, dep.String())
	}
	return next
}

func graphStatus(s State) provenance.Status {
	switch s {
	case StateResolved:
		return provenance.StatusResolved
	case StateSkipped:
		return provenance.StatusSkipped
	case StateFailed:
		return provenance.StatusFailed
	}
	return provenance.StatusPending
}

// =============================================================================
// Requirement resolution
// =============================================================================

func (r *run) resolve(ctx context.Context, it item) (out outcome) {
	out = outcome{item: it}
	if !r.processed.Claim(it.key) {
		out.dup = true
		return out
	}
	defer func() { r.processed.Finish(it.key, out.state) }()

	if it.requiredBy != "" {
		r.logger.Info("requirement", "req", it.key, "required_by", it.requiredBy)
	} else {
		r.logger.Info("requirement", "req", it.key)
	}

	if it.req.URL != "" {
		r.logger.Warn("skipping direct URL requirement", "req", it.key, "url", it.req.URL)
		out.state, out.reason = StateSkipped, "direct URL requirement"
		return out
	}

	ctx = withProject(ctx, it.req.Name)
	observability.Mirror().OnProjectStart(ctx, it.req.Name)
	start := time.Now()
	defer func() {
		observability.Mirror().OnProjectComplete(ctx, it.req.Name, len(out.files), time.Since(start), out.err)
	}()

	files, err := r.selectFiles(ctx, it)
	if err != nil {
		if it.topLevel || errors.IsFatal(err) || ctx.Err() != nil {
			out.state, out.err = StateFailed, err
			return out
		}
		r.logger.Warn("skipping dependency", "req", it.key, "required_by", it.requiredBy, "err", errors.UserMessage(err))
		out.state, out.reason = StateSkipped, errors.UserMessage(err)
		return out
	}

	out.files, out.deps, err = r.processFiles(ctx, it, files)
	if err != nil {
		out.state, out.err = StateFailed, err
		return out
	}
	out.state = StateResolved
	return out
}

func (r *run) selectFiles(ctx context.Context, it item) ([]dist.File, error) {
	cat, err := r.cfg.Index.Fetch(ctx, it.req.Name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return selector.Select(it.req, cat.Files, r.cfg.Environments, r.cfg.Selector)
}

// processFiles handles every selected file and returns the union of their
// dependencies in file order. Only cancellation is returned as an error.
func (r *run) processFiles(ctx context.Context, it item, files []dist.File) ([]fileOutcome, *requirement.Set, error) {
	outs := make([]fileOutcome, len(files))
	records := make([]*metadata.Record, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.FileConcurrency)
	for i, f := range files {
		g.Go(func() error {
			outs[i], records[i] = r.processFile(gctx, it, f)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return outs, nil, err
	}

	deps := requirement.NewSet()
	for i, rec := range records {
		if rec == nil {
			continue
		}
		deps.Merge(rec.Dependencies(it.req.Extras, r.cfg.Environments))
		r.logger.Debug("file done", "file", outs[i].filename, "deps", deps.Len())
	}
	return outs, deps, nil
}

func (r *run) processFile(ctx context.Context, it item, f dist.File) (fileOutcome, *metadata.Record) {
	out := fileOutcome{filename: f.Filename}
	if err := errors.ValidateFilename(f.Filename); err != nil {
		r.logger.Warn("refusing file", "file", f.Filename, "err", errors.UserMessage(err))
		out.owner, out.err = true, err
		return out, nil
	}
	target := filepath.Join(r.cfg.IndexDir, it.req.Name, f.Filename)

	task, owner := r.claimFile(target)
	out.owner = owner
	if owner {
		task.result, task.record, task.err = r.mirrorFile(ctx, f, target)
		close(task.done)
	} else {
		select {
		case <-task.done:
		case <-ctx.Done():
			out.err = ctx.Err()
			return out, nil
		}
	}

	out.result, out.err = task.result, task.err
	if out.err != nil {
		if owner {
			r.logger.Warn("failed processing file, skipping it", "file", f.Filename, "err", errors.UserMessage(out.err))
		}
		return out, nil
	}
	return out, task.record
}

func (r *run) claimFile(target string) (*fileTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.files[target]; ok {
		return t, false
	}
	t := &fileTask{done: make(chan struct{})}
	r.files[target] = t
	return t, true
}

func (r *run) mirrorFile(ctx context.Context, f dist.File, target string) (download.Result, *metadata.Record, error) {
	res, err := r.cfg.Fetcher.Ensure(ctx, f, target)
	if err != nil {
		return res, nil, err
	}
	if res.Fetched {
		r.logger.Info("downloaded", "file", f.Filename, "size", res.Size)
	} else {
		r.logger.Debug("up to date", "file", f.Filename)
	}
	if !res.Verified {
		r.logger.Warn("no usable digest advertised, file kept unverified", "file", f.Filename)
	}

	rec, err := metadata.Extract(target)
	if err != nil {
		return res, nil, err
	}
	if perr := rec.Err(); perr != nil {
		r.logger.Warn("failed parsing archive members", "file", f.Filename, "err", perr)
	}
	if rec.Seen() {
		if err := rec.WriteMetadata(target + MetadataSuffix); err != nil {
			return res, nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "write metadata sidecar for %s", f.Filename)
		}
	}
	return res, rec, nil
}

type projectKey struct{}

func withProject(ctx context.Context, project string) context.Context {
	return context.WithValue(ctx, projectKey{}, project)
}

// ProjectFromContext returns the project being resolved, for hooks.
func ProjectFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(projectKey{}).(string)
	return p, ok
}

package cli

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/config"
	"github.com/matzehuels/wheelhouse/pkg/download"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations"
	"github.com/matzehuels/wheelhouse/pkg/integrations/simple"
	"github.com/matzehuels/wheelhouse/pkg/mirror"
	"github.com/matzehuels/wheelhouse/pkg/provenance"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// mirrorOpts holds the command-line overrides for a mirror run.
type mirrorOpts struct {
	indexPath       string
	configPath      string
	indexURL        string
	allVersions     bool
	bestWheel       bool
	packageTypes    []string
	concurrency     int
	fileConcurrency int
	timeout         time.Duration
	noCache         bool
	graph           string
	detailed        bool
}

// mirrorCommand creates the mirror command.
func (c *CLI) mirrorCommand() *cobra.Command {
	var opts mirrorOpts

	cmd := &cobra.Command{
		Use:   "mirror [requirement...]",
		Short: "Mirror requirements and their dependencies into the index",
		Long: `Mirror the configured requirements, and everything they depend on in the
configured environments, into <index-path>/<project>/.

Requirement arguments replace the [requirements] section of the config file.`,
		Example: `  wheelhouse mirror
  wheelhouse mirror -i ./index "requests>=2.31" "urllib3<3"
  wheelhouse mirror --concurrency 8 --graph provenance.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runMirror(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.indexPath, "index-path", "i", "", "index directory (default: working directory)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: first of "+strings.Join(config.Candidates, ", ")+" in the index directory)")
	cmd.Flags().StringVar(&opts.indexURL, "index-url", "", "upstream simple index URL")
	cmd.Flags().BoolVar(&opts.allVersions, "all-versions", false, "mirror every matching version, not only the newest")
	cmd.Flags().BoolVar(&opts.bestWheel, "best-wheel", false, "keep only the best wheel per environment")
	cmd.Flags().StringSliceVar(&opts.packageTypes, "package-types", nil, "distribution types to mirror (whl, zip, tar.gz)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "requirements resolved in parallel")
	cmd.Flags().IntVar(&opts.fileConcurrency, "file-concurrency", 0, "files downloaded in parallel per requirement")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "per-file download timeout")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the listing cache")
	cmd.Flags().StringVar(&opts.graph, "graph", "", "write the provenance graph (.dot or .svg)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include wave and file counts in graph labels")

	return cmd
}

func (c *CLI) runMirror(cmd *cobra.Command, args []string, opts mirrorOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	dir, err := indexPath(opts.indexPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "index path %q", opts.indexPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create index %s", dir)
	}

	cfg, err := loadConfig(dir, opts.configPath)
	if err != nil {
		return err
	}
	applyMirrorFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	reqs, err := mirrorRequirements(cfg, args)
	if err != nil {
		return err
	}
	envs, err := cfg.EnvironmentSet()
	if err != nil {
		return err
	}
	sel, err := cfg.SelectorOptions()
	if err != nil {
		return err
	}

	backend, err := newCache(ctx, cfg.Cache, opts.noCache)
	if err != nil {
		return err
	}
	defer backend.Close()

	index, err := simple.NewClient(cfg.Mirror.IndexURL, backend, cfg.Cache.TTL)
	if err != nil {
		return err
	}
	index.SetHTTPClient(integrations.NewHTTPClient(cfg.Mirror.Timeout))

	newLogHooks(logger).install()

	engine, err := mirror.New(mirror.Config{
		Index:           index,
		Fetcher:         download.New(download.NewClient(), cfg.Mirror.Timeout),
		Environments:    envs,
		Selector:        sel,
		IndexDir:        dir,
		Concurrency:     cfg.Mirror.Concurrency,
		FileConcurrency: cfg.Mirror.FileConcurrency,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	logger.Info("Mirroring", "requirements", len(reqs), "environments", strings.Join(envs.Names(), ","), "index", index.BaseURL())
	prog := newProgress(logger)
	report, runErr := engine.Run(ctx, reqs)
	if report != nil {
		prog.done("Mirror finished")
		printReport(report)
		if opts.graph != "" && report.Graph != nil {
			if err := writeGraph(ctx, report.Graph, opts.graph, opts.detailed); err != nil {
				return err
			}
			printFile(opts.graph)
		}
	}
	if runErr != nil {
		return runErr
	}

	printNewline()
	printNextStep("Serve the index", "wheelhouse serve -i "+dir)
	return nil
}

// loadConfig reads the explicit config file or the first candidate in dir.
func loadConfig(dir, path string) (*config.Config, error) {
	if path == "" {
		var err error
		if path, err = config.Find(dir); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// applyMirrorFlags overrides file options with flags the user set.
func applyMirrorFlags(cmd *cobra.Command, cfg *config.Config, opts mirrorOpts) {
	f := cmd.Flags()
	m := &cfg.Mirror
	if f.Changed("index-url") {
		m.IndexURL = opts.indexURL
	}
	if f.Changed("all-versions") {
		m.AllVersions = opts.allVersions
	}
	if f.Changed("best-wheel") {
		m.BestWheelPerEnvironment = opts.bestWheel
	}
	if f.Changed("package-types") {
		m.PackageTypes = opts.packageTypes
	}
	if f.Changed("concurrency") {
		m.Concurrency = opts.concurrency
	}
	if f.Changed("file-concurrency") {
		m.FileConcurrency = opts.fileConcurrency
	}
	if f.Changed("timeout") {
		m.Timeout = opts.timeout
	}
}

// mirrorRequirements returns args parsed as requirements, or the config's
// list when no args are given.
func mirrorRequirements(cfg *config.Config, args []string) ([]requirement.Requirement, error) {
	if len(args) == 0 {
		reqs, err := cfg.ParsedRequirements()
		if err != nil {
			return nil, err
		}
		if len(reqs) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "nothing to mirror: no requirements in %s and none given", cfg.Path)
		}
		return reqs, nil
	}
	reqs := make([]requirement.Requirement, 0, len(args))
	for _, arg := range args {
		r, err := requirement.Parse(arg)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// writeGraph renders g to path, as SVG when the extension asks for it and
// as DOT otherwise.
func writeGraph(ctx context.Context, g *provenance.Graph, path string, detailed bool) error {
	dot := provenance.ToDOT(g, provenance.Options{Detailed: detailed})
	data := []byte(dot)
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		svg, err := provenance.RenderSVG(ctx, dot)
		if err != nil {
			return err
		}
		data = svg
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write graph %s", path)
	}
	return nil
}

// printReport prints the run summary.
func printReport(r *mirror.Report) {
	printSuccess("Mirrored %s requirements", StyleNumber.Render(strconv.Itoa(len(r.Resolved))))
	printStats(r)
	for _, s := range r.Skipped {
		printWarning("skipped %s (required by %s): %s", s.Requirement, s.RequiredBy, s.Reason)
	}
	for _, f := range r.Failures {
		printError("%s: %s", f.Filename, errors.UserMessage(f.Err))
	}
}

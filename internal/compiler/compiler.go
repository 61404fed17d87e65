// Package compiler expands a ReReco processing request into a sealed
// workload tree.
//
// The tree is built in dependency order: the processing task and its log
// collection first, then one merge task (with its cleanup) per output module
// the discovery tool reports, then the optional skim stage rooted at one of
// the merged outputs. Any failure discards the partial tree.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattjoyce/gridflow/internal/config"
	"github.com/mattjoyce/gridflow/internal/configcache"
	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/log"
	"github.com/mattjoyce/gridflow/internal/logdb"
	"github.com/mattjoyce/gridflow/internal/wmspec"
)

// Options carries the deployment settings the compiler copies into every
// workload.
type Options struct {
	Defaults       config.RequestDefaults
	Monitoring     config.MonitoringConfig
	ConfigCacheURL string
}

// OptionsFrom extracts compiler options from a loaded configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Defaults:       cfg.RequestDefaults,
		Monitoring:     cfg.Monitoring,
		ConfigCacheURL: cfg.ConfigCache.URL,
	}
}

// Result is a compiled workload plus the configuration documents stored
// while compiling it.
type Result struct {
	Workload    *wmspec.Workload
	ConfigDocs  []configcache.DocRef
	Fingerprint string
}

// Compiler builds ReReco workloads.
type Compiler struct {
	cache   ConfigCache
	disc    Discoverer
	auditor Auditor
	opts    Options
	logger  *slog.Logger
}

// New returns a compiler. cache may be nil when every request is
// scenario-based; auditor may be nil.
func New(cache ConfigCache, disc Discoverer, auditor Auditor, opts Options) *Compiler {
	return &Compiler{
		cache:   cache,
		disc:    disc,
		auditor: auditor,
		opts:    opts,
		logger:  log.WithComponent("compiler"),
	}
}

// Compile builds the workload named name from req. It returns either a
// complete, sealed workload or an error, never both.
func (c *Compiler) Compile(ctx context.Context, name string, req Request) (*Result, error) {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return nil, errdefs.InvalidArgument("Compile", "workload name %q is invalid", name)
	}
	logger := c.logger.With(slog.String("workload", name))

	res, err := c.compile(ctx, name, req, logger)
	if err != nil {
		logger.Error("compile failed", "error", err)
		c.audit(ctx, name, logdb.Error, fmt.Sprintf("compile failed: %v", err))
		return nil, err
	}

	logger.Info("workload compiled",
		"tasks", len(res.Workload.Tasks()),
		"config_docs", len(res.ConfigDocs),
		"fingerprint", res.Fingerprint,
	)
	c.audit(ctx, name, logdb.Info, fmt.Sprintf("compiled %d tasks", len(res.Workload.Tasks())))
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, name string, req Request, logger *slog.Logger) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if c.disc == nil {
		return nil, errdefs.Configuration("no output module discoverer configured")
	}
	if (req.ProcessingConfig != "" || req.SkimConfig != "") && c.cache == nil {
		return nil, errdefs.Configuration("request references a configuration document but no config cache is configured")
	}
	req = req.withDefaults(c.opts.Defaults)
	input, err := wmspec.ParseDataset(req.InputDataset)
	if err != nil {
		return nil, errdefs.Configuration("InputDataset %q is not /primary/processed/tier", req.InputDataset)
	}

	b := &builder{
		c:      c,
		req:    req,
		input:  input,
		logger: logger,
	}
	if err := b.storeConfigs(ctx); err != nil {
		return nil, err
	}

	w, err := wmspec.NewWorkload(name)
	if err != nil {
		return nil, err
	}
	w.Owner = req.Requestor
	w.AcquisitionEra = req.AcquisitionEra
	w.StartPolicy = "DatasetBlock"
	w.EndPolicy = "SingleShot"

	if err := b.build(ctx, w); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	w.Seal()

	fp, err := w.Fingerprint()
	if err != nil {
		return nil, err
	}
	return &Result{Workload: w, ConfigDocs: b.docs, Fingerprint: fp}, nil
}

func (c *Compiler) audit(ctx context.Context, request string, mtype logdb.MessageType, msg string) {
	if c.auditor == nil {
		return
	}
	if err := c.auditor.Post(ctx, request, msg, mtype); err != nil {
		c.logger.Warn("audit post failed", "request", request, "error", err)
	}
}

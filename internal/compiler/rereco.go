package compiler

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/gridflow/internal/configcache"
	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/protocol"
	"github.com/mattjoyce/gridflow/internal/wmspec"
)

// Task and step names of the ReReco layout.
const (
	ProcessingTask = "ReReco"
	SkimTask       = "Skims"
	LogCollectTask = "LogCollect"
	MergePrefix    = "Merge"
	CleanupPrefix  = "CleanupUnmerged"

	RunStep        = "cmsRun1"
	StageOutStep   = "stageOut1"
	LogArchiveStep = "logArch1"
	LogCollectStep = "logCollect1"

	// MergedModule is the single output module of every merge task.
	MergedModule = "Merged"
)

// promptReco is the scenario function every processing stage is configured by.
const promptReco = "promptReco"

var writeTiers = []string{"RECO", "ALCARECO"}

type builder struct {
	c      *Compiler
	req    Request
	input  wmspec.InputDataset
	logger *slog.Logger

	processingDoc *configcache.DocRef
	skimDoc       *configcache.DocRef
	docs          []configcache.DocRef
}

// storeConfigs puts the request's configuration documents in the cache.
func (b *builder) storeConfigs(ctx context.Context) error {
	store := func(content string) (*configcache.DocRef, error) {
		if content == "" {
			return nil, nil
		}
		ref, err := b.c.cache.AddConfig(ctx, content)
		if err != nil {
			return nil, err
		}
		b.docs = append(b.docs, ref)
		return &ref, nil
	}

	var err error
	if b.processingDoc, err = store(b.req.ProcessingConfig); err != nil {
		return err
	}
	if b.skimDoc, err = store(b.req.SkimConfig); err != nil {
		return err
	}
	return nil
}

func (b *builder) build(ctx context.Context, w *wmspec.Workload) error {
	proc, err := w.NewTask(ProcessingTask)
	if err != nil {
		return err
	}
	ds := b.input
	ds.DBSURL = b.req.DbsUrl
	ds.BlockWhitelist = b.req.BlockWhiteList
	ds.BlockBlacklist = b.req.BlockBlackList
	ds.RunWhitelist = b.req.RunWhiteList
	ds.RunBlacklist = b.req.RunBlackList
	if err := proc.SetInputDataset(ds); err != nil {
		return err
	}

	procApp := b.processingApplication()
	run, err := b.processingTask(proc, wmspec.TaskProcessing, procApp, "FileBased", map[string]any{"files_per_job": 1})
	if err != nil {
		return err
	}

	modules, err := b.discover(ctx, proc, procApp, b.processingDoc, b.promptRecoArgs())
	if err != nil {
		return err
	}
	merges, err := b.addOutputs(proc, run, modules)
	if err != nil {
		return err
	}

	if b.skimDoc == nil {
		return nil
	}
	mergeRun, ok := merges[b.req.SkimInput]
	if !ok {
		return errdefs.Configuration("SkimInput %q is not an output module of %s (have %v)",
			b.req.SkimInput, ProcessingTask, modules.Names())
	}
	return b.skim(ctx, mergeRun)
}

// skim adds the secondary processing stage reading the merged output of
// mergeRun's task.
func (b *builder) skim(ctx context.Context, mergeRun *wmspec.Step) error {
	skim, err := mergeRun.Task().AddTask(SkimTask)
	if err != nil {
		return err
	}
	if err := skim.SetInputReference(mergeRun, MergedModule); err != nil {
		return err
	}

	app := b.baseApplication()
	app.ConfigCache = b.docRef(b.skimDoc)
	app.MinMergeSize = b.req.MinMergeSize
	run, err := b.processingTask(skim, wmspec.TaskSkim, app, "TwoFileBased", map[string]any{"files_per_job": 1})
	if err != nil {
		return err
	}

	modules, err := b.discover(ctx, skim, app, b.skimDoc, map[string]any{})
	if err != nil {
		return err
	}
	_, err = b.addOutputs(skim, run, modules)
	return err
}

// processingTask fills t with the run, stage-out and log-archive steps and
// attaches its LogCollect child. It returns the run step.
func (b *builder) processingTask(t *wmspec.Task, typ wmspec.TaskType, app wmspec.Application, algo string, params map[string]any) (*wmspec.Step, error) {
	if err := t.SetType(typ); err != nil {
		return nil, err
	}
	run, logArch, err := b.addRunSteps(t, app)
	if err != nil {
		return nil, err
	}
	if err := b.configureTask(t, algo, params); err != nil {
		return nil, err
	}
	if err := t.SetSiteLists(b.req.SiteWhiteList, b.req.SiteBlackList); err != nil {
		return nil, err
	}
	if err := b.addLogCollect(t, logArch); err != nil {
		return nil, err
	}
	b.logger.Debug("task added", "task", t.Path(), "type", typ)
	return run, nil
}

// addRunSteps adds cmsRun1 followed by stageOut1 and logArch1.
func (b *builder) addRunSteps(t *wmspec.Task, app wmspec.Application) (*wmspec.Step, *wmspec.Step, error) {
	run, err := t.AddStep(RunStep, wmspec.StepCMSSW)
	if err != nil {
		return nil, nil, err
	}
	if err := run.SetApplication(app); err != nil {
		return nil, nil, err
	}
	if _, err := run.ChainStep(StageOutStep, wmspec.StepStageOut); err != nil {
		return nil, nil, err
	}
	logArch, err := run.ChainStep(LogArchiveStep, wmspec.StepLogArchive)
	if err != nil {
		return nil, nil, err
	}
	return run, logArch, nil
}

func (b *builder) configureTask(t *wmspec.Task, algo string, params map[string]any) error {
	if err := t.ApplySplitting(algo, params); err != nil {
		return err
	}
	for _, g := range []string{"BasicNaming", "BasicCounter"} {
		if err := t.AddGenerator(g); err != nil {
			return err
		}
	}
	mon := b.c.opts.Monitoring
	return t.SetMonitoring(wmspec.Monitoring{
		Interval: mon.Interval,
		Monitors: []string{"DashboardMonitor"},
		Dashboard: &wmspec.DashboardMonitor{
			SoftTimeout:     mon.SoftTimeout,
			HardTimeout:     mon.HardTimeout,
			DestinationHost: mon.DestinationHost,
			DestinationPort: mon.DestinationPort,
		},
	})
}

func (b *builder) addLogCollect(parent *wmspec.Task, logArch *wmspec.Step) error {
	lc, err := parent.AddTask(LogCollectTask)
	if err != nil {
		return err
	}
	if err := lc.SetType(wmspec.TaskLogCollect); err != nil {
		return err
	}
	if _, err := lc.AddStep(LogCollectStep, wmspec.StepLogCollect); err != nil {
		return err
	}
	if err := lc.SetInputReference(logArch, wmspec.LogArchiveModule); err != nil {
		return err
	}
	if err := lc.ApplySplitting("EndOfRun", map[string]any{"files_per_job": 500}); err != nil {
		return err
	}
	b.logger.Debug("task added", "task", lc.Path(), "type", wmspec.TaskLogCollect)
	return nil
}

// addOutputs declares every discovered module on run and adds its merge and
// cleanup tasks under t. It returns the merge run step per module.
func (b *builder) addOutputs(t *wmspec.Task, run *wmspec.Step, modules protocol.Response) (map[string]*wmspec.Step, error) {
	merges := make(map[string]*wmspec.Step, len(modules))
	for _, name := range modules.Names() {
		info := modules[name]
		processed := wmspec.ProcessedDatasetName(b.req.AcquisitionEra, info.FilterName, b.req.ProcessingVersion)
		om := wmspec.OutputModule{
			Name:             name,
			PrimaryDataset:   b.input.Primary,
			ProcessedDataset: processed,
			DataTier:         info.DataTier,
			FilterName:       info.FilterName,
			LFNBase:          wmspec.LFNBase(b.req.UnmergedLFNBase, info.DataTier, processed),
			MergedLFNBase:    wmspec.LFNBase(b.req.MergedLFNBase, info.DataTier, processed),
		}
		if _, err := run.AddOutputModule(om); err != nil {
			return nil, err
		}

		mergeRun, err := b.addMerge(t, run, om)
		if err != nil {
			return nil, err
		}
		if err := b.addCleanup(mergeRun.Task(), run, name); err != nil {
			return nil, err
		}
		merges[name] = mergeRun
	}
	return merges, nil
}

func (b *builder) addMerge(parent *wmspec.Task, parentRun *wmspec.Step, om wmspec.OutputModule) (*wmspec.Step, error) {
	merge, err := parent.AddTask(MergePrefix + om.Name)
	if err != nil {
		return nil, err
	}
	if err := merge.SetType(wmspec.TaskMerge); err != nil {
		return nil, err
	}
	if err := merge.SetInputReference(parentRun, om.Name); err != nil {
		return nil, err
	}

	app := b.baseApplication()
	app.MinMergeSize = b.req.MinMergeSize
	app.Scenario = &wmspec.Scenario{Name: "cosmics", Func: "merge"}
	run, _, err := b.addRunSteps(merge, app)
	if err != nil {
		return nil, err
	}
	merged := om
	merged.Name = MergedModule
	merged.LFNBase = om.MergedLFNBase
	if _, err := run.AddOutputModule(merged); err != nil {
		return nil, err
	}

	err = b.configureTask(merge, "WMBSMergeBySize", map[string]any{
		"max_merge_size":   b.req.MaxMergeSize,
		"min_merge_size":   b.req.MinMergeSize,
		"max_merge_events": b.req.MaxMergeEvents,
	})
	if err != nil {
		return nil, err
	}
	if err := merge.SetSiteLists(b.req.SiteWhiteList, b.req.SiteBlackList); err != nil {
		return nil, err
	}
	b.logger.Debug("task added", "task", merge.Path(), "type", wmspec.TaskMerge)
	return run, nil
}

// addCleanup deletes the unmerged files of module once merge has read them.
// It reads the unmerged output, not the merged one.
func (b *builder) addCleanup(merge *wmspec.Task, parentRun *wmspec.Step, module string) error {
	cleanup, err := merge.AddTask(CleanupPrefix + module)
	if err != nil {
		return err
	}
	if err := cleanup.SetType(wmspec.TaskCleanup); err != nil {
		return err
	}
	if err := cleanup.SetInputReference(parentRun, module); err != nil {
		return err
	}
	if _, err := cleanup.AddStep("cleanupUnmerged"+module, wmspec.StepDeleteFiles); err != nil {
		return err
	}
	if err := cleanup.ApplySplitting("SiblingProcessingBased", map[string]any{"files_per_job": 50}); err != nil {
		return err
	}
	b.logger.Debug("task added", "task", cleanup.Path(), "type", wmspec.TaskCleanup)
	return nil
}

func (b *builder) baseApplication() wmspec.Application {
	return wmspec.Application{
		FrameworkVersion: b.req.CMSSWVersion,
		ScramArch:        b.req.ScramArch,
		GlobalTag:        b.req.GlobalTag,
	}
}

func (b *builder) processingApplication() wmspec.Application {
	app := b.baseApplication()
	app.MinMergeSize = b.req.MinMergeSize
	if b.processingDoc != nil {
		app.ConfigCache = b.docRef(b.processingDoc)
		return app
	}
	app.Scenario = &wmspec.Scenario{
		Name: b.req.Scenario,
		Func: promptReco,
		Args: b.promptRecoArgs(),
	}
	return app
}

func (b *builder) promptRecoArgs() map[string]any {
	return map[string]any{
		"globalTag":  b.req.GlobalTag,
		"writeTiers": append([]string(nil), writeTiers...),
	}
}

func (b *builder) docRef(doc *configcache.DocRef) *wmspec.ConfigCacheRef {
	return &wmspec.ConfigCacheRef{
		URL:      b.c.opts.ConfigCacheURL,
		DocID:    doc.ID,
		Revision: doc.Revision,
	}
}

// discover asks the external tool which output modules app produces. The
// scenario function is always promptReco; a config document, when present,
// takes precedence in the tool.
func (b *builder) discover(ctx context.Context, t *wmspec.Task, app wmspec.Application, doc *configcache.DocRef, args map[string]any) (protocol.Response, error) {
	req := protocol.Request{
		CmsPath:          b.req.CmsPath,
		ScramArch:        app.ScramArch,
		FrameworkVersion: app.FrameworkVersion,
		ScenarioName:     b.req.Scenario,
		ScenarioFunc:     promptReco,
		ScenarioArgs:     args,
	}
	if doc != nil {
		req.ConfigURL = b.c.opts.ConfigCacheURL + "/" + doc.ID
	}

	modules, err := b.c.disc.Discover(ctx, req)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("output modules discovered", "task", t.Path(), "modules", modules.Names())
	return modules, nil
}

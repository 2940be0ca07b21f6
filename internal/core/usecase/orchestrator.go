package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
)

const (
	uploadBandEnd    = 50
	simulatedBandEnd = 90
	completeProgress = 100

	defaultArchiveName   = "converted_files.zip"
	defaultFailureReason = "conversion failed, please retry"
)

type OrchestratorOptions struct {
	// StartDelay is measured from the moment the submit call is issued.
	StartDelay     time.Duration
	SingleDuration time.Duration
	BatchDuration  time.Duration
	DownloadDelay  time.Duration

	Simulator       ProgressSimulator
	DownloadBaseURL string
	Logger          *slog.Logger
}

func DefaultOrchestratorOptions() OrchestratorOptions {
	return OrchestratorOptions{
		StartDelay:     500 * time.Millisecond,
		SingleDuration: 3 * time.Second,
		BatchDuration:  5 * time.Second,
		DownloadDelay:  1 * time.Second,
		Simulator:      ProgressSimulator{Steps: defaultSimulatorSteps},
	}
}

func (o OrchestratorOptions) normalize() OrchestratorOptions {
	out := o
	def := DefaultOrchestratorOptions()

	if out.StartDelay < 0 {
		out.StartDelay = def.StartDelay
	}
	if out.SingleDuration <= 0 {
		out.SingleDuration = def.SingleDuration
	}
	if out.BatchDuration <= 0 {
		out.BatchDuration = def.BatchDuration
	}
	if out.DownloadDelay < 0 {
		out.DownloadDelay = def.DownloadDelay
	}
	if out.Simulator.Steps <= 0 {
		out.Simulator = def.Simulator
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// UploadOrchestrator owns one tool page's batch and drives a single conversion run at a time:
// upload, simulated remote processing, then success with one download or failure.
//
// Observers registered with Subscribe see snapshots in the order they were produced.
// They must not call back into the orchestrator's mutating methods.
type UploadOrchestrator struct {
	client  ports.ConversionClient
	trigger ports.DownloadTrigger
	policy  domain.ToolPolicy
	opts    OrchestratorOptions

	notifyMu sync.Mutex

	mu           sync.Mutex
	state        domain.RunSnapshot
	batch        []domain.FileDescriptor
	epoch        uint64
	run          *activeRun
	lingering    map[*activeRun]struct{}
	listeners    map[int]func(domain.RunSnapshot)
	nextListener int
}

type activeRun struct {
	epoch uint64
	ctx   context.Context
	files []domain.FileDescriptor

	cancel        context.CancelFunc
	startTimer    *time.Timer
	simCancel     CancelFunc
	downloadTimer *time.Timer
	downloaded    bool
	dropDownload  bool

	done     chan struct{}
	doneOnce sync.Once
}

func (r *activeRun) stopProgress() {
	if r.startTimer != nil {
		r.startTimer.Stop()
	}
	if r.simCancel != nil {
		r.simCancel()
	}
}

func (r *activeRun) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func NewUploadOrchestrator(
	client ports.ConversionClient,
	trigger ports.DownloadTrigger,
	policy domain.ToolPolicy,
	opts OrchestratorOptions,
) *UploadOrchestrator {
	return &UploadOrchestrator{
		client:    client,
		trigger:   trigger,
		policy:    policy,
		opts:      opts.normalize(),
		state:     domain.RunSnapshot{Status: domain.RunIdle},
		lingering: make(map[*activeRun]struct{}),
		listeners: make(map[int]func(domain.RunSnapshot)),
	}
}

// Select validates files against the tool policy. When at least one file passes, the batch is
// replaced and the orchestrator returns to idle; otherwise the previous batch is left untouched.
func (o *UploadOrchestrator) Select(files []domain.FileDescriptor) (domain.ValidationReport, error) {
	report := ValidateFiles(files, o.policy.Validation)
	accepted := report.Accepted
	if !o.policy.Multiple && len(accepted) > 1 {
		accepted = accepted[:1]
	}

	var err error
	o.update(func() bool {
		if o.state.Status.IsActive() {
			err = domain.WrapError(domain.ErrRunInProgress, "select files", errors.New("selection is locked while converting"))
			return false
		}
		o.state.Advisory = report.Advisory(o.policy.Validation.MaxSizeMB)
		if len(accepted) > 0 {
			o.batch = slices.Clone(accepted)
			o.state.Status = domain.RunIdle
			o.state.Progress = 0
			o.state.Message = ""
		}
		return true
	})
	return report, err
}

// Remove drops the file at index from the batch. An emptied batch resets progress and message.
func (o *UploadOrchestrator) Remove(index int) error {
	var err error
	o.update(func() bool {
		if o.state.Status.IsActive() {
			err = domain.WrapError(domain.ErrRunInProgress, "remove file", errors.New("selection is locked while converting"))
			return false
		}
		if index < 0 || index >= len(o.batch) {
			err = domain.WrapError(domain.ErrInvalidInput, "remove file", fmt.Errorf("index %d out of range [0,%d)", index, len(o.batch)))
			return false
		}
		o.batch = slices.Delete(slices.Clone(o.batch), index, index+1)
		o.state.Advisory = ""
		if len(o.batch) == 0 {
			o.state.Status = domain.RunIdle
			o.state.Progress = 0
			o.state.Message = ""
		}
		return true
	})
	return err
}

// Convert starts a run for the current batch. It returns ErrRunInProgress without touching
// state when a run is already uploading or processing.
func (o *UploadOrchestrator) Convert(ctx context.Context) error {
	var (
		run *activeRun
		err error
	)
	o.update(func() bool {
		if o.state.Status.IsActive() {
			err = domain.WrapError(domain.ErrRunInProgress, "convert", fmt.Errorf("run %d is %s", o.state.Run, o.state.Status))
			return false
		}
		if len(o.batch) == 0 {
			err = domain.WrapError(domain.ErrInvalidInput, "convert", errors.New("no files selected"))
			return false
		}
		o.supersedeRunLocked()

		o.epoch++
		runCtx, cancel := context.WithCancel(ctx)
		run = &activeRun{
			epoch:  o.epoch,
			ctx:    runCtx,
			files:  slices.Clone(o.batch),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		run.startTimer = time.AfterFunc(o.opts.StartDelay, func() { o.startSimulation(run) })
		o.run = run

		o.state.Run = o.epoch
		o.state.Status = domain.RunUploading
		o.state.Progress = 0
		o.state.Message = ""
		return true
	})
	if err != nil {
		return err
	}

	o.opts.Logger.Info("conversion_started", "run", run.epoch, "files", len(run.files), "endpoint", o.policy.Endpoint)
	go o.execute(run)
	return nil
}

// Reset cancels any in-flight run, pending simulation or download and clears the batch.
func (o *UploadOrchestrator) Reset() {
	o.update(func() bool {
		o.stopRunLocked()
		o.epoch++
		o.batch = nil
		o.state = domain.RunSnapshot{Run: o.epoch, Status: domain.RunIdle}
		return true
	})
}

func (o *UploadOrchestrator) Snapshot() domain.RunSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe registers an observer and returns a function that removes it.
func (o *UploadOrchestrator) Subscribe(fn func(domain.RunSnapshot)) func() {
	o.mu.Lock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// Wait blocks until the current run is terminal and, on success, its download was triggered.
func (o *UploadOrchestrator) Wait(ctx context.Context) (domain.RunSnapshot, error) {
	o.mu.Lock()
	run := o.run
	o.mu.Unlock()

	if run != nil {
		select {
		case <-run.done:
		case <-ctx.Done():
			return o.Snapshot(), ctx.Err()
		}
	}
	return o.Snapshot(), nil
}

func (o *UploadOrchestrator) execute(run *activeRun) {
	outcome := o.client.Submit(run.ctx, run.files, func(progress int) {
		o.onUploadProgress(run, progress)
	})
	o.resolve(run, outcome)
}

func (o *UploadOrchestrator) onUploadProgress(run *activeRun, progress int) {
	o.update(func() bool {
		if !o.isCurrentLocked(run) || !o.state.Status.IsActive() {
			return false
		}
		progress = min(max(progress, 0), uploadBandEnd)

		changed := false
		if progress > o.state.Progress {
			o.state.Progress = progress
			changed = true
		}
		if progress >= uploadBandEnd && o.state.Status == domain.RunUploading {
			o.state.Status = domain.RunProcessing
			changed = true
		}
		return changed
	})
}

func (o *UploadOrchestrator) startSimulation(run *activeRun) {
	o.update(func() bool {
		if !o.isCurrentLocked(run) || !o.state.Status.IsActive() {
			return false
		}
		duration := o.opts.SingleDuration
		if len(run.files) > 1 {
			duration = o.opts.BatchDuration
		}
		run.simCancel = o.opts.Simulator.Start(func(progress int) {
			o.onSimulatedProgress(run, progress)
		}, uploadBandEnd, simulatedBandEnd, duration)

		if o.state.Status == domain.RunUploading {
			o.state.Status = domain.RunProcessing
			return true
		}
		return false
	})
}

func (o *UploadOrchestrator) onSimulatedProgress(run *activeRun, progress int) {
	o.update(func() bool {
		if !o.isCurrentLocked(run) || !o.state.Status.IsActive() {
			return false
		}
		if progress <= o.state.Progress {
			return false
		}
		o.state.Progress = progress
		return true
	})
}

func (o *UploadOrchestrator) resolve(run *activeRun, outcome domain.ConversionOutcome) {
	stale := false
	o.update(func() bool {
		if !o.isCurrentLocked(run) {
			stale = true
			return false
		}
		run.stopProgress()
		run.cancel()

		if outcome.OK() {
			o.state.Status = domain.RunSucceeded
			o.state.Progress = completeProgress
			o.state.Message = outcome.Success.Message

			downloadURL := o.downloadURL(outcome.Success)
			filename := o.downloadName(run.files)
			run.downloadTimer = time.AfterFunc(o.opts.DownloadDelay, func() {
				o.fireDownload(run, downloadURL, filename)
			})
			return true
		}

		reason := defaultFailureReason
		if outcome.Failure != nil && strings.TrimSpace(outcome.Failure.Reason) != "" {
			reason = outcome.Failure.Reason
		}
		o.state.Status = domain.RunFailed
		o.state.Progress = 0
		o.state.Message = reason
		run.finish()
		return true
	})

	switch {
	case stale:
		o.opts.Logger.Debug("conversion_result_discarded", "run", run.epoch)
	case outcome.OK():
		o.opts.Logger.Info("conversion_succeeded", "run", run.epoch, "artifact", outcome.Success.ArtifactRef, "file_count", outcome.Success.FileCount)
	default:
		var cause error
		if outcome.Failure != nil {
			cause = outcome.Failure.Err
		}
		o.opts.Logger.Warn("conversion_failed", "run", run.epoch, "error", cause)
	}
}

func (o *UploadOrchestrator) fireDownload(run *activeRun, downloadURL, filename string) {
	defer run.finish()

	o.mu.Lock()
	fire := !run.dropDownload && !run.downloaded
	if fire {
		run.downloaded = true
	}
	delete(o.lingering, run)
	o.mu.Unlock()

	if fire && o.trigger != nil {
		o.opts.Logger.Info("download_triggered", "run", run.epoch, "url", downloadURL, "filename", filename)
		o.trigger.Trigger(downloadURL, filename)
	}
}

func (o *UploadOrchestrator) downloadURL(success *domain.ConversionSuccess) string {
	base := strings.TrimRight(o.opts.DownloadBaseURL, "/")
	if success.SuggestedFilename != "" {
		return base + "/api/download/" + url.PathEscape(success.SuggestedFilename)
	}
	ref := success.ArtifactRef
	if parsed, err := url.Parse(ref); err == nil && parsed.IsAbs() {
		return ref
	}
	if base == "" {
		return ref
	}
	return base + "/" + strings.TrimLeft(ref, "/")
}

func (o *UploadOrchestrator) downloadName(files []domain.FileDescriptor) string {
	if len(files) == 1 {
		if o.policy.OutputExtension == "" {
			return files[0].Name
		}
		return replaceExtension(files[0].Name, o.policy.OutputExtension)
	}
	if o.policy.ArchiveName != "" {
		return o.policy.ArchiveName
	}
	return defaultArchiveName
}

func (o *UploadOrchestrator) isCurrentLocked(run *activeRun) bool {
	return o.run == run && run.epoch == o.epoch
}

// stopRunLocked cancels the current run and every download still pending from earlier runs.
func (o *UploadOrchestrator) stopRunLocked() {
	for run := range o.lingering {
		cancelDownload(run)
		delete(o.lingering, run)
	}
	if o.run == nil {
		return
	}
	cancelDownload(o.run)
	o.run.stopProgress()
	o.run.cancel()
	o.run.finish()
	o.run = nil
}

// supersedeRunLocked retires a terminal run before a retry. A download it already scheduled
// still fires once.
func (o *UploadOrchestrator) supersedeRunLocked() {
	run := o.run
	if run == nil {
		return
	}
	run.stopProgress()
	run.cancel()
	if run.downloadTimer != nil && !run.downloaded {
		o.lingering[run] = struct{}{}
	} else {
		run.finish()
	}
	o.run = nil
}

func cancelDownload(run *activeRun) {
	run.dropDownload = true
	if run.downloadTimer != nil {
		run.downloadTimer.Stop()
	}
	run.finish()
}

func (o *UploadOrchestrator) snapshotLocked() domain.RunSnapshot {
	snap := o.state
	snap.Files = make([]string, 0, len(o.batch))
	for _, file := range o.batch {
		snap.Files = append(snap.Files, file.Name)
	}
	return snap
}

// update applies fn under the state lock and, when fn reports a change, delivers the
// resulting snapshot to every observer before the next update can start.
func (o *UploadOrchestrator) update(fn func() bool) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	changed := fn()
	snap := o.snapshotLocked()
	listeners := make([]func(domain.RunSnapshot), 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(snap)
	}
}

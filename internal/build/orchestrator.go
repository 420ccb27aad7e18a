package build

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"srcweb/internal/analysis"
	"srcweb/internal/diagnostics"
	"srcweb/internal/errors"
	"srcweb/internal/jobs"
	"srcweb/internal/metrics"
	"srcweb/internal/pull"
	"srcweb/internal/reprocess"
)

// State of the orchestrator's current (or last) build.
type State string

const (
	StateIdle      State = "idle"
	StateBuilding  State = "building"
	StateStreaming State = "streaming_diagnostics"
	StateIndexing  State = "indexing"
	// StateReprocessing turns buffered diagnostics into snippets.
	StateReprocessing State = "reprocessing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Sink receives a build's events. *streaming.Stream is the HTTP sink.
type Sink interface {
	SendError(diagnostic any) error
	SendMessage(line string) error
	SendClose(summary any) error
}

// DiscardSink drops every event. Builds nobody watches use it.
type DiscardSink struct{}

func (DiscardSink) SendError(any) error      { return nil }
func (DiscardSink) SendMessage(string) error { return nil }
func (DiscardSink) SendClose(any) error      { return nil }

// Indexer rebuilds the analysis index. *analysis.Host implements it.
type Indexer interface {
	Reload(ctx context.Context) (analysis.Stats, error)
}

// Files is the source file cache snippets are cut from.
type Files interface {
	reprocess.FileSource
	Reset()
}

// Summary is the payload of the close event.
type Summary struct {
	Success     bool   `json:"success"`
	ExitCode    int    `json:"exit_code"`
	Diagnostics int    `json:"diagnostics"`
	Errors      int    `json:"errors"`
	Messages    int    `json:"messages"`
	SoftErrors  int    `json:"soft_errors"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	PullDataKey string `json:"pull_data_key"`
	Failure     string `json:"failure,omitempty"`
}

// Failure is sent as an error event when the build could not run.
type Failure struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Outcome is what a synchronous Run returns.
type Outcome struct {
	Summary Summary `json:"summary"`
	// Result is nil when the build failed before producing diagnostics.
	Result *reprocess.Result `json:"result,omitempty"`
}

// Status is a snapshot for /status.
type Status struct {
	State  State    `json:"state"`
	Builds int      `json:"builds"`
	Last   *Summary `json:"last,omitempty"`
}

// Options wires an Orchestrator to the process-wide services.
type Options struct {
	Command      Command
	ContextLines int
	Indexer      Indexer
	Files        Files
	Pull         *pull.Cache
	// Jobs records build history; nil disables it.
	Jobs   *jobs.Store
	Logger *slog.Logger
}

// Orchestrator runs builds. Builds are not serialized: two concurrent
// builds both stream, reindex and publish under their own keys.
type Orchestrator struct {
	opts Options

	mu     sync.Mutex
	state  State
	builds int
	last   *Summary
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{opts: opts, state: StateIdle}
}

// Start runs a build on a background goroutine and returns its pull key.
// The build is detached from any request context: a client that goes away
// stops receiving events, the build still completes and publishes.
func (o *Orchestrator) Start(sink Sink) string {
	key := o.opts.Pull.Create()
	go o.run(key, sink)
	return key
}

// Run builds synchronously.
func (o *Orchestrator) Run(sink Sink) Outcome {
	return o.run(o.opts.Pull.Create(), sink)
}

// Status returns the current state and the last summary.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{State: o.state, Builds: o.builds, Last: o.last}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

type buildRun struct {
	key     string
	sink    Sink
	logger  *slog.Logger
	counter diagnostics.Counter
	diags   []*diagnostics.Diagnostic
	summary Summary
	// detached is set once the sink refuses events.
	detached bool
}

func (b *buildRun) deliver(err error) {
	if err != nil && !b.detached {
		b.detached = true
		b.logger.Debug("Build client went away, continuing without it", "key", b.key, "error", err)
	}
}

func (o *Orchestrator) run(key string, sink Sink) Outcome {
	start := time.Now()
	logger := o.opts.Logger.With("key", key)
	b := &buildRun{key: key, sink: sink, logger: logger, summary: Summary{PullDataKey: key}}

	o.mu.Lock()
	o.builds++
	o.mu.Unlock()
	o.setState(StateBuilding)

	job := o.recordStart(key)

	cmd := o.opts.Command
	streaming := false
	exitCode, err := cmd.Run(context.Background(), func(line string) {
		if !streaming {
			streaming = true
			// Snippets of this build must come from files as they are now.
			o.opts.Files.Reset()
			o.setState(StateStreaming)
		}
		b.handleLine(line)
	}, logger)
	b.summary.ExitCode = exitCode
	b.summary.ElapsedMs = time.Since(start).Milliseconds()

	if err != nil {
		return o.fail(b, job, err, start)
	}

	b.summary.Success = exitCode == 0
	metrics.RecordBuild(b.summary.Success, time.Since(start))
	logger.Info("Build finished",
		"exitCode", exitCode,
		"diagnostics", b.summary.Diagnostics,
		"errors", b.summary.Errors,
		"duration", time.Since(start),
	)
	b.deliver(sink.SendClose(b.summary))

	o.setState(StateIndexing)
	if _, err := o.opts.Indexer.Reload(context.Background()); err != nil {
		logger.Warn("Index reload failed, keeping previous index", "error", err)
	}
	o.opts.Files.Reset()

	o.setState(StateReprocessing)
	rp := reprocess.Reprocessor{ContextLines: o.opts.ContextLines, Source: o.opts.Files, Logger: logger}
	result := rp.Run(key, b.diags)
	o.publish(key, result, logger)

	o.recordEnd(job, b.summary, len(result.Snippets), nil)
	o.finish(StateDone, b.summary)
	return Outcome{Summary: b.summary, Result: &result}
}

func (b *buildRun) handleLine(line string) {
	parsed := diagnostics.LowerLine(line, &b.counter)
	switch parsed.Kind {
	case diagnostics.KindDiagnostic:
		d := parsed.Diagnostic
		b.diags = append(b.diags, d)
		b.summary.Diagnostics++
		if d.Level.IsError() {
			b.summary.Errors++
		}
		metrics.RecordDiagnostic(string(d.Level))
		b.deliver(b.sink.SendError(d))
	case diagnostics.KindMessage:
		b.summary.Messages++
		b.deliver(b.sink.SendMessage(parsed.Message))
	case diagnostics.KindSoftError:
		b.summary.SoftErrors++
		metrics.RecordSoftError("diagnostic")
		b.logger.Warn("Skipping malformed diagnostic", "error", parsed.Err)
	}
}

// fail ends a build that could not run to completion. The index and file
// cache are left as they were; the pull key resolves to an empty result so
// pollers do not wait forever.
func (o *Orchestrator) fail(b *buildRun, job *jobs.Job, err error, start time.Time) Outcome {
	b.summary.Success = false
	b.summary.Failure = err.Error()
	metrics.RecordBuild(false, time.Since(start))
	b.logger.Error("Build failed", "error", err)

	b.deliver(b.sink.SendError(Failure{Code: errors.CodeOf(err), Message: err.Error()}))
	b.deliver(b.sink.SendClose(b.summary))

	result := reprocess.Result{Key: b.key, Snippets: []reprocess.Snippet{}}
	o.publish(b.key, result, b.logger)

	o.recordEnd(job, b.summary, 0, err)
	o.finish(StateFailed, b.summary)
	return Outcome{Summary: b.summary}
}

func (o *Orchestrator) publish(key string, result reprocess.Result, logger *slog.Logger) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to encode build result", "error", err)
		payload = nil
	}
	if err := o.opts.Pull.Publish(key, payload); err != nil {
		logger.Error("Failed to publish build result", "error", err)
	}
}

func (o *Orchestrator) finish(state State, summary Summary) {
	o.mu.Lock()
	o.state = state
	o.last = &summary
	o.mu.Unlock()
}

func (o *Orchestrator) recordStart(key string) *jobs.Job {
	if o.opts.Jobs == nil {
		return nil
	}
	cmd := o.opts.Command
	job, err := jobs.NewJob(jobs.JobTypeBuild, jobs.BuildScope{Command: cmd.Program, Args: cmd.Args, PullKey: key})
	if err != nil {
		o.opts.Logger.Warn("Failed to create build job", "error", err)
		return nil
	}
	job.MarkStarted()
	if err := o.opts.Jobs.CreateJob(job); err != nil {
		o.opts.Logger.Warn("Failed to record build job", "error", err)
		return nil
	}
	return job
}

func (o *Orchestrator) recordEnd(job *jobs.Job, s Summary, snippets int, failure error) {
	if job == nil {
		return
	}
	if failure != nil {
		job.MarkFailed(failure)
	} else if err := job.MarkCompleted(jobs.BuildResult{
		Success:     s.Success,
		ExitCode:    s.ExitCode,
		Diagnostics: s.Diagnostics,
		Errors:      s.Errors,
		Messages:    s.Messages,
		SoftErrors:  s.SoftErrors,
		Snippets:    snippets,
		PullDataKey: s.PullDataKey,
		Duration:    (time.Duration(s.ElapsedMs) * time.Millisecond).String(),
	}); err != nil {
		o.opts.Logger.Warn("Failed to encode build result", "jobId", job.ID, "error", err)
	}
	if err := o.opts.Jobs.UpdateJob(job); err != nil {
		o.opts.Logger.Warn("Failed to update build job", "jobId", job.ID, "error", err)
	}
}

// Package executor runs a plan's artifact DAG: it dispatches ready
// artifacts up to the concurrency budget, persists every produced
// message, checkpoints execution state after each transition, and
// pauses the run when a component reports pending batch work.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/llm"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/planner"
	"github.com/waivern/wct/pkg/schema"
	"github.com/waivern/wct/pkg/store"
)

const instrumentationName = "github.com/waivern/wct/pkg/executor"

// Options tunes an executor.
type Options struct {
	Logger *slog.Logger
	// Concurrency overrides the runbook's max_concurrency when > 0.
	Concurrency int
}

// Executor executes plans against a component registry, schema
// registry, service container, and artifact store.
type Executor struct {
	components  *component.Registry
	schemas     *schema.Registry
	services    *component.Container
	store       store.Store
	logger      *slog.Logger
	concurrency int

	tracer           trace.Tracer
	artifactCounter  metric.Int64Counter
	artifactDuration metric.Float64Histogram
}

// New returns an executor.
func New(components *component.Registry, schemas *schema.Registry, services *component.Container, st store.Store, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(instrumentationName)
	counter, _ := meter.Int64Counter("wct.artifacts.total",
		metric.WithDescription("Artifacts settled, by status"),
		metric.WithUnit("{artifact}"),
	)
	duration, _ := meter.Float64Histogram("wct.artifact.duration",
		metric.WithDescription("Artifact production duration"),
		metric.WithUnit("s"),
	)
	return &Executor{
		components:       components,
		schemas:          schemas,
		services:         services,
		store:            st,
		logger:           logger,
		concurrency:      opts.Concurrency,
		tracer:           otel.Tracer(instrumentationName),
		artifactCounter:  counter,
		artifactDuration: duration,
	}
}

// Execute runs the plan to quiescence. A non-empty resumeRunID resumes
// a paused or failed run: settled artifacts are not re-executed and the
// plan's runbook hash must match the one recorded at run start.
//
// Component failures do not fail the call; they are reported in the
// Result. Execute returns an error only for planning-level problems
// (hash mismatch, missing state) and persistence failures.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, resumeRunID string) (*Result, error) {
	start := time.Now()

	state, md, err := e.prepare(ctx, plan, resumeRunID)
	if err != nil {
		return nil, err
	}
	runID := state.RunID

	ctx, span := e.tracer.Start(ctx, "executor.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("runbook.name", plan.Runbook.Name),
		attribute.Bool("run.resumed", resumeRunID != ""),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(plan.Runbook.Config.Timeout())*time.Second)
	defer cancel()

	res := &Result{RunID: runID, StartTimestamp: md.StartedAt}
	if err := e.runDAG(ctx, runCtx, plan, state, res); err != nil {
		return nil, err
	}

	md.Status = e.finalStatus(plan, state, res)
	res.Status = md.Status
	if err := e.saveMetadata(ctx, md); err != nil {
		return nil, err
	}
	if md.Status == store.RunStatusCompleted {
		if err := store.NewCache(e.store).Clear(ctx, runID); err != nil {
			e.logger.Warn("clearing llm cache failed", "run_id", runID, "error", err)
		}
	}

	res.TotalDurationSeconds = time.Since(start).Seconds()
	e.logger.Info("run finished",
		"run_id", runID,
		"status", md.Status,
		"artifacts", len(res.Artifacts),
		"skipped", len(res.Skipped),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

type settled struct {
	id       string
	outcome  Outcome
	duration time.Duration
}

// runDAG drives the topological sorter. Artifacts waiting on batch
// submissions are never marked done, which keeps their descendants
// undispatched; independent branches still run to completion.
func (e *Executor) runDAG(ctx, runCtx context.Context, plan *planner.Plan, state *State, res *Result) error {
	concurrency := e.concurrency
	if concurrency <= 0 {
		concurrency = plan.Runbook.Config.Concurrency()
	}

	sorter := plan.DAG.Sorter()
	sem := semaphore.NewWeighted(int64(concurrency))
	doneCh := make(chan settled, plan.DAG.Len())
	inFlight := 0
	var queue []string

	for {
		queue = append(queue, sorter.Ready()...)

		advanced := false
		var waiting []string
		for _, id := range queue {
			// Artifacts settled in a previous pass release their
			// dependents without re-running.
			if state.StatusOf(id) != StatusNotStarted {
				if err := sorter.Done(id); err != nil {
					return err
				}
				advanced = true
				continue
			}
			if !sem.TryAcquire(1) {
				waiting = append(waiting, id)
				continue
			}
			inFlight++
			node := plan.Nodes[id]
			go func() {
				defer sem.Release(1)
				t0 := time.Now()
				out := e.runArtifact(runCtx, state.RunID, plan, node)
				doneCh <- settled{id: node.ID, outcome: out, duration: time.Since(t0)}
			}()
		}
		queue = waiting
		if advanced {
			continue
		}
		if inFlight == 0 {
			return nil
		}

		d := <-doneCh
		inFlight--
		if err := e.handleOutcome(ctx, plan, state, res, sorter, d); err != nil {
			return err
		}
	}
}

func (e *Executor) handleOutcome(ctx context.Context, plan *planner.Plan, state *State, res *Result, sorter dagSorter, d settled) error {
	node := plan.Nodes[d.id]
	base := ArtifactResult{
		ArtifactID:      d.id,
		DurationSeconds: d.duration.Seconds(),
		Origin:          node.Origin,
		Alias:           node.Alias,
	}

	switch o := d.outcome.(type) {
	case Completed:
		if err := e.settle(ctx, state, d.id, StatusCompleted); err != nil {
			return err
		}
		base.Success = true
		base.Message = fmt.Sprintf("produced message %s", o.Message.ID)
		res.Artifacts = append(res.Artifacts, base)
		e.record(ctx, d, string(StatusCompleted))
		e.logger.Info("artifact completed", "run_id", state.RunID, "artifact", d.id,
			"duration", d.duration.Round(time.Millisecond))
		return sorter.Done(d.id)

	case Pending:
		// The artifact stays not_started so a later pass retries it
		// once the provider finishes. Descendants are blocked because
		// the node is never marked done.
		res.Pending = true
		e.record(ctx, d, "pending")
		e.logger.Info("artifact awaiting batch results", "run_id", state.RunID,
			"artifact", d.id, "batch_ids", o.Batch.BatchIDs)
		return nil

	case Failed:
		if err := e.settle(ctx, state, d.id, StatusFailed); err != nil {
			return err
		}
		base.Error = o.Err.Error()
		res.Artifacts = append(res.Artifacts, base)
		e.record(ctx, d, string(StatusFailed))
		e.logger.Warn("artifact failed", "run_id", state.RunID, "artifact", d.id,
			"optional", node.Optional, "error", o.Err)
		if !node.Optional {
			if err := e.skipDescendants(ctx, plan, state, res, d.id); err != nil {
				return err
			}
		}
		return sorter.Done(d.id)

	default:
		return fmt.Errorf("artifact %s: unexpected outcome %T", d.id, d.outcome)
	}
}

// dagSorter matches the subset of the DAG sorter the outcome handler
// needs.
type dagSorter interface {
	Done(id string) error
}

// skipDescendants marks every unsettled transitive dependent of a
// failed artifact as skipped. The dispatch loop releases them as they
// become ready.
func (e *Executor) skipDescendants(ctx context.Context, plan *planner.Plan, state *State, res *Result, failedID string) error {
	for _, id := range plan.DAG.Descendants(failedID) {
		if state.StatusOf(id) != StatusNotStarted {
			continue
		}
		if err := e.settle(ctx, state, id, StatusSkipped); err != nil {
			return err
		}
		res.Skipped = append(res.Skipped, id)
		e.logger.Warn("artifact skipped", "run_id", state.RunID, "artifact", id, "failed_dependency", failedID)
	}
	return nil
}

// settle transitions an artifact and checkpoints the state document.
func (e *Executor) settle(ctx context.Context, state *State, id string, to Status) error {
	if err := state.Mark(id, to); err != nil {
		return err
	}
	state.LastCheckpoint = time.Now().UTC()
	if err := e.store.PutDoc(ctx, state.RunID, store.StateKey, state); err != nil {
		return fmt.Errorf("checkpoint run %s: %w", state.RunID, err)
	}
	return nil
}

func (e *Executor) finalStatus(plan *planner.Plan, state *State, res *Result) string {
	if res.Pending {
		return store.RunStatusPaused
	}
	for _, id := range state.InStatus(StatusFailed) {
		if n := plan.Nodes[id]; n != nil && !n.Optional {
			return store.RunStatusFailed
		}
	}
	return store.RunStatusCompleted
}

// runArtifact produces one artifact and reports the outcome variant.
func (e *Executor) runArtifact(ctx context.Context, runID string, plan *planner.Plan, node *planner.Node) Outcome {
	ctx, span := e.tracer.Start(ctx, "executor.artifact", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("artifact.id", node.ID),
	))
	defer span.End()

	msg, err := e.produce(ctx, runID, plan, node)
	if err != nil {
		if pb, ok := llm.AsPendingBatch(err); ok {
			return Pending{Batch: pb}
		}
		span.RecordError(err)
		return Failed{Err: err}
	}
	return Completed{Message: msg}
}

func (e *Executor) produce(ctx context.Context, runID string, plan *planner.Plan, node *planner.Node) (*message.Message, error) {
	var (
		msg *message.Message
		err error
	)
	switch node.Kind {
	case planner.KindAlias:
		msg, err = e.store.Get(ctx, runID, store.ArtifactPrefix+node.AliasOf)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: resolve alias %s: %w", node.ID, node.AliasOf, err)
		}

	case planner.KindSource:
		inst, ierr := e.instantiate(node)
		if ierr != nil {
			return nil, fmt.Errorf("artifact %s: %w", node.ID, ierr)
		}
		conn, ok := inst.(component.Connector)
		if !ok {
			return nil, fmt.Errorf("artifact %s: component %q is not a connector", node.ID, node.Component.Type)
		}
		msg, err = conn.Extract(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", node.ID, err)
		}

	case planner.KindProcess:
		input, lerr := e.loadInput(ctx, runID, plan, node)
		if lerr != nil {
			return nil, lerr
		}
		inst, ierr := e.instantiate(node)
		if ierr != nil {
			return nil, fmt.Errorf("artifact %s: %w", node.ID, ierr)
		}
		proc, ok := inst.(component.Processor)
		if !ok {
			return nil, fmt.Errorf("artifact %s: component %q is not a processor", node.ID, node.Component.Type)
		}
		msg, err = proc.Process(ctx, runID, input)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", node.ID, err)
		}

	default:
		return nil, fmt.Errorf("artifact %s: unknown node kind", node.ID)
	}

	if msg == nil {
		return nil, fmt.Errorf("artifact %s: component produced no message", node.ID)
	}
	if msg.Schema != node.OutputSchema {
		return nil, fmt.Errorf("artifact %s: produced schema %s, plan requires %s", node.ID, msg.Schema, node.OutputSchema)
	}
	if err := msg.Validate(e.schemas); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", node.ID, err)
	}
	msg = msg.WithRunID(runID)
	if err := e.store.Save(ctx, runID, store.ArtifactPrefix+node.ID, msg); err != nil {
		return nil, fmt.Errorf("artifact %s: persist: %w", node.ID, err)
	}
	return msg, nil
}

// loadInput fetches the artifact's inputs in declaration order and
// applies the fan-in merge policy. Inputs produced by failed optional
// artifacts are tolerated and dropped.
func (e *Executor) loadInput(ctx context.Context, runID string, plan *planner.Plan, node *planner.Node) (*message.Message, error) {
	var msgs []*message.Message
	for _, in := range node.InputIDs {
		m, err := e.store.Get(ctx, runID, store.ArtifactPrefix+in)
		if err != nil {
			if errors.Is(err, store.ErrArtifactNotFound) {
				if up := plan.Nodes[in]; up != nil && up.Optional {
					e.logger.Warn("dropping unavailable optional input", "run_id", runID,
						"artifact", node.ID, "input", in)
					continue
				}
			}
			return nil, fmt.Errorf("artifact %s: load input %s: %w", node.ID, in, err)
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("artifact %s: no inputs available", node.ID)
	}
	if len(msgs) == 1 {
		return msgs[0], nil
	}
	merged, err := mergeConcatenate(msgs)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", node.ID, err)
	}
	return merged, nil
}

func (e *Executor) instantiate(node *planner.Node) (any, error) {
	f, err := e.components.Lookup(node.Component.Type)
	if err != nil {
		return nil, err
	}
	return f.Create(node.Component.Properties, e.services)
}

// prepare creates fresh run bookkeeping or loads it for a resume.
func (e *Executor) prepare(ctx context.Context, plan *planner.Plan, resumeRunID string) (*State, store.RunMetadata, error) {
	if resumeRunID == "" {
		runID := uuid.NewString()
		state := NewState(runID, plan.Hash, plan.DAG.Nodes())
		state.LastCheckpoint = time.Now().UTC()
		md := store.RunMetadata{
			RunID:       runID,
			RunbookPath: plan.Path,
			StartedAt:   time.Now().UTC(),
			Status:      store.RunStatusRunning,
		}
		if err := e.store.PutDoc(ctx, runID, store.StateKey, state); err != nil {
			return nil, md, fmt.Errorf("initialise run %s: %w", runID, err)
		}
		if err := e.saveMetadata(ctx, md); err != nil {
			return nil, md, err
		}
		return state, md, nil
	}

	var state State
	if err := e.store.GetDoc(ctx, resumeRunID, store.StateKey, &state); err != nil {
		if errors.Is(err, store.ErrArtifactNotFound) {
			return nil, store.RunMetadata{}, fmt.Errorf("%w: no saved state for run %q", planner.ErrPlanning, resumeRunID)
		}
		return nil, store.RunMetadata{}, fmt.Errorf("load state for run %s: %w", resumeRunID, err)
	}
	if state.RunbookHash != plan.Hash {
		return nil, store.RunMetadata{}, fmt.Errorf("%w: runbook hash mismatch for run %s: state records %s, runbook is %s",
			planner.ErrPlanning, resumeRunID, state.RunbookHash, plan.Hash)
	}

	var md store.RunMetadata
	if err := e.store.GetDoc(ctx, resumeRunID, store.MetadataKey, &md); err != nil {
		if !errors.Is(err, store.ErrArtifactNotFound) {
			return nil, md, fmt.Errorf("load metadata for run %s: %w", resumeRunID, err)
		}
		md = store.RunMetadata{RunID: resumeRunID, RunbookPath: plan.Path, StartedAt: state.LastCheckpoint}
	}
	md.Status = store.RunStatusRunning
	if err := e.saveMetadata(ctx, md); err != nil {
		return nil, md, err
	}
	return &state, md, nil
}

func (e *Executor) saveMetadata(ctx context.Context, md store.RunMetadata) error {
	if err := e.store.PutDoc(ctx, md.RunID, store.MetadataKey, md); err != nil {
		return fmt.Errorf("save metadata for run %s: %w", md.RunID, err)
	}
	if err := e.store.SaveRunMetadata(ctx, md); err != nil {
		return fmt.Errorf("index run %s: %w", md.RunID, err)
	}
	return nil
}

func (e *Executor) record(ctx context.Context, d settled, status string) {
	attrs := metric.WithAttributes(
		attribute.String("artifact.id", d.id),
		attribute.String("status", status),
	)
	if e.artifactCounter != nil {
		e.artifactCounter.Add(ctx, 1, attrs)
	}
	if e.artifactDuration != nil {
		e.artifactDuration.Record(ctx, d.duration.Seconds(), attrs)
	}
}

package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/flowgraph/flowgraph/internal/metrics"
	"github.com/flowgraph/flowgraph/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineConfig configures a pipeline.
type PipelineConfig struct {
	// Name identifies the pipeline; defaults to the generated ID.
	Name string
	// Hooks substitutes workflows for lifecycle points (HookPush).
	Hooks map[Hook]Workflow
	// Logger defaults to a nop logger.
	Logger *zap.Logger
	// Metrics is the optional collector; nil disables metrics.
	Metrics *metrics.Collector
}

// Pipeline is an ordered, append-only sequence of workflows executed
// via chained continuations: the forward pass walks the list front to
// back, the backward pass unwinds through the same chain in reverse.
type Pipeline struct {
	id         string
	name       string
	hookCfg    map[Hook]Workflow
	hooks      *HookSet
	emitter    *Emitter
	logger     *zap.Logger
	baseLogger *zap.Logger
	collector  *metrics.Collector

	mu        sync.Mutex
	workflows []Workflow
}

// NewPipeline constructs an empty pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	id := uuid.New().String()
	name := cfg.Name
	if name == "" {
		name = id
	}
	base := cfg.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logger := base.With(zap.String("component", "pipeline"), zap.String("pipeline", name))

	return &Pipeline{
		id:         id,
		name:       name,
		hookCfg:    cfg.Hooks,
		hooks:      NewHookSet(cfg.Hooks),
		emitter:    newEmitter(logger),
		logger:     logger,
		baseLogger: base,
		collector:  cfg.Metrics,
	}
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() string { return p.id }

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Len returns the number of workflows in the pipeline.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workflows)
}

// Workflows returns a snapshot of the workflow list.
func (p *Pipeline) Workflows() []Workflow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Workflow(nil), p.workflows...)
}

// AddListener subscribes to the pipeline's events.
func (p *Pipeline) AddListener(name string, h Handler) string {
	return p.emitter.AddListener(name, h)
}

// RemoveListener cancels a subscription.
func (p *Pipeline) RemoveListener(id string) {
	p.emitter.RemoveListener(id)
}

// Push appends workflows in order. Pushing zero workflows is a hard
// error. Each append runs the push hook independently and commits
// individually: a failing append does not roll back its siblings. When
// appends fail the error aggregates every failure and distinguishes
// "all pushes failed" from "some pushes failed".
func (p *Pipeline) Push(ctx context.Context, workflows ...Workflow) error {
	if len(workflows) == 0 {
		return types.NewError(types.ErrNoWorkflows, "no workflows provided")
	}

	var failures []error
	appended := 0
	for _, wf := range workflows {
		if err := p.hooks.run(ctx, HookPush, &PushChange{Pipeline: p, Workflow: wf}); err != nil {
			failures = append(failures, err)
			continue
		}
		p.mu.Lock()
		p.workflows = append(p.workflows, wf)
		p.mu.Unlock()
		appended++
	}

	if len(failures) == 0 {
		p.logger.Debug("workflows pushed", zap.Int("count", appended))
		return nil
	}

	msg := "some pushes failed"
	if appended == 0 {
		msg = "all pushes failed"
	}
	agg := types.NewAggregateError(types.ErrPushFailed, msg, failures...)
	p.emitter.emitError(p.name, agg)
	return agg
}

// Run executes the pipeline against the shared state. It walks a
// snapshot of the workflow list — mutations during a run do not affect
// that run — dispatching each workflow with the continuation of the
// remainder; exhaustion invokes tail. Any failure in the chain is
// wrapped as "pipeline failed", reported, and re-thrown.
func (p *Pipeline) Run(ctx context.Context, state any, tail Next) error {
	snapshot := p.Workflows()
	idx := 0

	var next Next
	next = func(ctx context.Context) error {
		if idx >= len(snapshot) {
			if tail != nil {
				return tail(ctx)
			}
			return nil
		}
		wf := snapshot[idx]
		idx++
		return Run(ctx, wf, state, next)
	}

	start := time.Now()
	if err := next(ctx); err != nil {
		p.collector.RecordPipelineRun("failed", time.Since(start))
		agg := types.NewAggregateError(types.ErrRunFailed, "pipeline failed", err)
		p.logger.Debug("pipeline run failed", zap.Error(err))
		p.emitter.emitError(p.name, agg)
		return agg
	}

	p.collector.RecordPipelineRun("completed", time.Since(start))
	p.logger.Debug("pipeline run completed", zap.Int("workflows", len(snapshot)), zap.Duration("duration", time.Since(start)))
	return nil
}

// Duplicate produces a new pipeline with a fresh identity. Shallow
// duplication shares workflow references; deep duplication recursively
// duplicates nested pipelines and graphs. Tasks are shared either way.
func (p *Pipeline) Duplicate(ctx context.Context, deep bool) (*Pipeline, error) {
	dup := NewPipeline(PipelineConfig{
		Name:    p.name,
		Hooks:   p.hookCfg,
		Logger:  p.baseLogger,
		Metrics: p.collector,
	})

	for _, wf := range p.Workflows() {
		copied, err := wf.duplicate(ctx, deep)
		if err != nil {
			return nil, err
		}
		dup.mu.Lock()
		dup.workflows = append(dup.workflows, copied)
		dup.mu.Unlock()
	}
	return dup, nil
}

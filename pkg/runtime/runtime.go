// Package runtime executes runs against agents and teams, producing an
// ordered event stream per run and persisting run outputs through the
// session store.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tandem-run/tandem/pkg/agent"
	"github.com/tandem-run/tandem/pkg/model/provider"
	"github.com/tandem-run/tandem/pkg/run"
	"github.com/tandem-run/tandem/pkg/session"
	"github.com/tandem-run/tandem/pkg/team"
)

const defaultMaxIterations = 20

// Runtime manages the execution of a root component, which is either an
// agent or a team.
type Runtime struct {
	root          team.Member
	store         session.Store
	tracer        trace.Tracer
	retry         provider.RetryPolicy
	maxIterations int
}

type Opt func(*Runtime)

// WithSessionStore sets the store run outputs are persisted through.
// Defaults to an in-memory store.
func WithSessionStore(store session.Store) Opt {
	return func(rt *Runtime) {
		rt.store = store
	}
}

func WithTracer(tracer trace.Tracer) Opt {
	return func(rt *Runtime) {
		rt.tracer = tracer
	}
}

func WithRetryPolicy(policy provider.RetryPolicy) Opt {
	return func(rt *Runtime) {
		rt.retry = policy
	}
}

// WithMaxIterations bounds the number of model turns per run.
func WithMaxIterations(n int) Opt {
	return func(rt *Runtime) {
		rt.maxIterations = n
	}
}

// New creates a runtime for the given root component.
func New(root team.Member, opts ...Opt) (*Runtime, error) {
	switch c := root.(type) {
	case *agent.Agent:
		if c.Model() == nil {
			return nil, fmt.Errorf("agent %s has no model", c.ID())
		}
	case *team.Team:
		if c.Model() == nil {
			return nil, fmt.Errorf("team %s has no model", c.ID())
		}
		if c.Size() == 0 {
			return nil, fmt.Errorf("team %s has no members", c.ID())
		}
	default:
		return nil, fmt.Errorf("unsupported component type %T", root)
	}

	rt := &Runtime{
		root:          root,
		retry:         provider.DefaultRetryPolicy(),
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.store == nil {
		rt.store = session.NewInMemoryStore()
	}
	if rt.tracer == nil {
		rt.tracer = otel.Tracer("tandem")
	}
	return rt, nil
}

// Root returns the runtime's root component.
func (rt *Runtime) Root() team.Member {
	return rt.root
}

type runConfig struct {
	userID             string
	streamMemberEvents *bool
	storeEvents        *bool
	maxIterations      int
}

type RunOpt func(*runConfig)

func WithUserID(userID string) RunOpt {
	return func(c *runConfig) {
		c.userID = userID
	}
}

// WithStreamMemberEvents controls whether member run events are forwarded
// into a team run's stream. Enabled by default.
func WithStreamMemberEvents(enabled bool) RunOpt {
	return func(c *runConfig) {
		c.streamMemberEvents = &enabled
	}
}

// WithStoreEvents overrides the component's store-events setting for this
// run.
func WithStoreEvents(enabled bool) RunOpt {
	return func(c *runConfig) {
		c.storeEvents = &enabled
	}
}

// WithRunMaxIterations bounds the number of model turns for this run only.
func WithRunMaxIterations(n int) RunOpt {
	return func(c *runConfig) {
		c.maxIterations = n
	}
}

func (rt *Runtime) newRunConfig(opts []RunOpt) runConfig {
	cfg := runConfig{maxIterations: rt.maxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxIterations <= 0 {
		cfg.maxIterations = defaultMaxIterations
	}
	return cfg
}

// RunStream starts a run and returns its event stream. The channel is
// unbuffered: the producer blocks until the consumer keeps up, and it is
// closed after the terminal event.
func (rt *Runtime) RunStream(ctx context.Context, sess *session.Session, input string, opts ...RunOpt) (<-chan run.Event, error) {
	ch, _, err := rt.startRun(ctx, sess, input, opts)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Run executes a run to its terminal event and returns the aggregated
// output. A failed run is reported through the output's status, not as an
// error.
func (rt *Runtime) Run(ctx context.Context, sess *session.Session, input string, opts ...RunOpt) (*run.Output, error) {
	ch, agg, err := rt.startRun(ctx, sess, input, opts)
	if err != nil {
		return nil, err
	}
	for range ch {
	}
	return agg.Output(), nil
}

func (rt *Runtime) startRun(ctx context.Context, sess *session.Session, input string, opts []RunOpt) (chan run.Event, *run.Aggregator, error) {
	if sess == nil {
		return nil, nil, errors.New("session is required")
	}
	cfg := rt.newRunConfig(opts)

	cr, err := rt.newComponentRun(rt.root, sess, cfg, nil)
	if err != nil {
		return nil, nil, err
	}

	agg := run.NewAggregator(cr.rc, cfg.userID, input, cr.aggregatorOpts()...)
	ch := make(chan run.Event)
	cr.em = &emitter{ch: ch, agg: agg}

	go func() {
		defer close(ch)
		cr.start(ctx, input)
		rt.persist(ctx, sess, agg.Output())
	}()

	return ch, agg, nil
}

// persist appends the run output to the session and upserts it through the
// store. Store failures are logged; the stream already carried the result.
func (rt *Runtime) persist(ctx context.Context, sess *session.Session, output *run.Output) {
	sess.AddRun(output)
	if _, err := rt.store.UpsertSession(ctx, sess); err != nil {
		slog.Error("Failed to persist session", "session_id", sess.ID, "run_id", output.RunID, "error", err)
	}
}

// emitter couples an aggregator with the run's event channel. Member runs
// share the channel but own their aggregator; a nil channel aggregates
// without forwarding.
type emitter struct {
	ch  chan run.Event
	agg *run.Aggregator
}

func (e *emitter) emit(ctx context.Context, event run.Event) {
	e.agg.Apply(event)
	if e.ch == nil {
		return
	}
	select {
	case e.ch <- event:
	case <-ctx.Done():
	}
}

func newRunID() string {
	return uuid.New().String()
}

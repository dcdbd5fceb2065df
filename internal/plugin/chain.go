package plugin

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voiceflow/internal/observe"
)

// ChainOption is a functional option for [NewChain].
type ChainOption func(*Chain)

// WithDisableOnFailure moves a plugin to StateFailed after it fails during a
// run, so later runs skip it. The current run is unaffected. Off by default.
func WithDisableOnFailure(on bool) ChainOption {
	return func(c *Chain) { c.disableOnFailure = on }
}

// WithChainMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithChainMetrics(m *observe.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// Chain applies the enabled plugins of a [Registry] to transcripts.
type Chain struct {
	reg              *Registry
	metrics          *observe.Metrics
	disableOnFailure bool
}

// NewChain creates a Chain over reg.
func NewChain(reg *Registry, opts ...ChainOption) *Chain {
	c := &Chain{reg: reg}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Run passes text through every enabled plugin in ordinal order and returns
// the last stage's output. Each plugin is invoked exactly once. A failing
// plugin is logged with its ID and its input is passed on unchanged; Run
// itself never fails.
func (c *Chain) Run(ctx context.Context, text string) string {
	ctx, span := observe.StartSpan(ctx, "plugin.chain")
	defer span.End()
	start := time.Now()

	plugins := c.reg.Snapshot()
	span.SetAttributes(attribute.Int("plugin.count", len(plugins)))

	out := text
	for _, p := range plugins {
		out = c.invoke(ctx, p, out)
	}

	c.metrics.ChainDuration.Record(ctx, time.Since(start).Seconds())
	return out
}

func (c *Chain) invoke(ctx context.Context, p Plugin, in string) string {
	id := p.ID()
	ctx, span := observe.StartSpan(ctx, "plugin."+id, trace.WithAttributes(attribute.String("plugin.id", id)))
	defer span.End()

	start := time.Now()
	out, err := c.call(ctx, p, in)
	c.metrics.RecordPlugin(ctx, id, time.Since(start).Seconds(), err != nil)
	if err == nil {
		return out
	}

	perr := &Error{PluginID: id, Hook: "on_transcription", Err: err}
	span.RecordError(perr)
	observe.Logger(ctx).Warn("plugin failed, passing text through", "plugin_id", id, "err", err)
	if c.disableOnFailure {
		c.reg.MarkFailed(id, perr)
	}
	return in
}

func (c *Chain) call(ctx context.Context, p Plugin, in string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.OnTranscription(ctx, in)
}

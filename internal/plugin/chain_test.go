package plugin_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/voiceflow/internal/observe"
	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/plugin/mock"
)

func newChain(t *testing.T, reg *plugin.Registry, opts ...plugin.ChainOption) *plugin.Chain {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return plugin.NewChain(reg, append([]plugin.ChainOption{plugin.WithChainMetrics(m)}, opts...)...)
}

// mustAdd registers and enables p at ordinal.
func mustAdd(t *testing.T, reg *plugin.Registry, p plugin.Plugin, ordinal int) {
	t.Helper()
	if err := reg.Register(context.Background(), plugin.Manifest{}, p, ordinal); err != nil {
		t.Fatalf("Register %s: %v", p.ID(), err)
	}
	if err := reg.Enable(p.ID()); err != nil {
		t.Fatalf("Enable %s: %v", p.ID(), err)
	}
}

var (
	toUpper = plugin.Func{Name: "to_upper", Transform: func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	}}
	appendPeriod = plugin.Func{Name: "append_period", Transform: func(_ context.Context, s string) (string, error) {
		return s + ".", nil
	}}
	alwaysFails = plugin.Func{Name: "always_fails", Transform: func(context.Context, string) (string, error) {
		return "garbage", errors.New("boom")
	}}
	panics = plugin.Func{Name: "panics", Transform: func(context.Context, string) (string, error) {
		panic("unexpected nil")
	}}
	doubleDots = plugin.Func{Name: "double_dots", Transform: func(_ context.Context, s string) (string, error) {
		return strings.ReplaceAll(s, ".", ".."), nil
	}}
)

func TestChain_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		plugins []plugin.Plugin
		in      string
		want    string
	}{
		{name: "no plugins", in: "hello world", want: "hello world"},
		{name: "upper then period", plugins: []plugin.Plugin{toUpper, appendPeriod}, in: "hello world", want: "HELLO WORLD."},
		{name: "period then dots", plugins: []plugin.Plugin{appendPeriod, doubleDots}, in: "hi", want: "hi.."},
		{name: "dots then period", plugins: []plugin.Plugin{doubleDots, appendPeriod}, in: "hi", want: "hi."},
		{name: "failing stage passes through", plugins: []plugin.Plugin{toUpper, alwaysFails, appendPeriod}, in: "abc", want: "ABC."},
		{name: "failing last stage", plugins: []plugin.Plugin{toUpper, alwaysFails}, in: "abc", want: "ABC"},
		{name: "panicking stage passes through", plugins: []plugin.Plugin{panics, appendPeriod}, in: "abc", want: "abc."},
		{name: "only failures", plugins: []plugin.Plugin{alwaysFails, panics}, in: "raw", want: "raw"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reg := plugin.NewRegistry()
			for i, p := range tc.plugins {
				mustAdd(t, reg, p, i)
			}
			if got := newChain(t, reg).Run(context.Background(), tc.in); got != tc.want {
				t.Errorf("Run(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestChain_OrderDependence(t *testing.T) {
	t.Parallel()

	run := func(first, second plugin.Plugin) string {
		reg := plugin.NewRegistry()
		mustAdd(t, reg, first, 0)
		mustAdd(t, reg, second, 1)
		return newChain(t, reg).Run(context.Background(), "hello world")
	}

	forward := run(toUpper, appendPeriod)
	if forward != "HELLO WORLD." {
		t.Fatalf("forward = %q, want %q", forward, "HELLO WORLD.")
	}
	periodFirst := run(appendPeriod, doubleDots)
	dotsFirst := run(doubleDots, appendPeriod)
	if periodFirst == dotsFirst {
		t.Errorf("swapping order produced the same output %q", periodFirst)
	}
	if again := run(doubleDots, appendPeriod); again != dotsFirst {
		t.Errorf("non-deterministic output: %q then %q", dotsFirst, again)
	}
}

func TestChain_OrdinalNotRegistrationOrder(t *testing.T) {
	t.Parallel()
	reg := plugin.NewRegistry()
	mustAdd(t, reg, appendPeriod, 20)
	mustAdd(t, reg, toUpper, 10)
	if got := newChain(t, reg).Run(context.Background(), "x"); got != "X." {
		t.Errorf("Run = %q, want %q", got, "X.")
	}
}

func TestChain_InvokesEachPluginOnce(t *testing.T) {
	t.Parallel()

	reg := plugin.NewRegistry()
	a := &mock.Plugin{PluginID: "a", TransformFn: func(s string) (string, error) { return s + "a", nil }}
	b := &mock.Plugin{PluginID: "b", TransformFn: func(s string) (string, error) { return s, errors.New("nope") }}
	c := &mock.Plugin{PluginID: "c"}
	mustAdd(t, reg, a, 0)
	mustAdd(t, reg, b, 1)
	mustAdd(t, reg, c, 2)

	if got := newChain(t, reg).Run(context.Background(), "x"); got != "xa" {
		t.Errorf("Run = %q, want xa", got)
	}
	for _, p := range []*mock.Plugin{a, b, c} {
		if n := len(p.Calls()); n != 1 {
			t.Errorf("plugin %s invoked %d times, want 1", p.PluginID, n)
		}
	}
	if got := c.Calls()[0]; got != "xa" {
		t.Errorf("plugin c input = %q, want output of last successful stage", got)
	}
}

func TestChain_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	reg := plugin.NewRegistry()
	second := &mock.Plugin{PluginID: "second", TransformFn: func(s string) (string, error) { return s + "2", nil }}
	first := &mock.Plugin{PluginID: "first", TransformFn: func(s string) (string, error) {
		// Disable the next plugin mid-run.
		if err := reg.Disable("second"); err != nil {
			return "", err
		}
		return s + "1", nil
	}}
	mustAdd(t, reg, first, 0)
	mustAdd(t, reg, second, 1)

	chain := newChain(t, reg)
	if got := chain.Run(context.Background(), "x"); got != "x12" {
		t.Errorf("first run = %q, want x12 (snapshot taken at start)", got)
	}
	if got := chain.Run(context.Background(), "x"); got != "x1" {
		t.Errorf("second run = %q, want x1 (disabled plugin skipped)", got)
	}
}

func TestChain_ConcurrentRunsAndToggles(t *testing.T) {
	t.Parallel()

	reg := plugin.NewRegistry()
	mustAdd(t, reg, toUpper, 0)
	mustAdd(t, reg, appendPeriod, 1)
	chain := newChain(t, reg)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				got := chain.Run(context.Background(), "ab")
				switch got {
				case "AB.", "AB", "ab.", "ab":
				default:
					t.Errorf("unexpected output %q", got)
				}
			}
		}()
	}
	for i := range 100 {
		if i%2 == 0 {
			_ = reg.Disable(appendPeriod.ID())
		} else {
			_ = reg.Enable(appendPeriod.ID())
		}
	}
	wg.Wait()
}

func TestChain_DisableOnFailure(t *testing.T) {
	t.Parallel()

	for _, disable := range []bool{false, true} {
		reg := plugin.NewRegistry()
		flaky := &mock.Plugin{PluginID: "flaky", TransformFn: func(s string) (string, error) {
			return "", errors.New("rate limited")
		}}
		mustAdd(t, reg, flaky, 0)

		chain := newChain(t, reg, plugin.WithDisableOnFailure(disable))
		chain.Run(context.Background(), "one")
		chain.Run(context.Background(), "two")

		info, _ := reg.Get("flaky")
		wantCalls, wantState := 2, plugin.StateEnabled
		if disable {
			wantCalls, wantState = 1, plugin.StateFailed
		}
		if n := len(flaky.Calls()); n != wantCalls {
			t.Errorf("disable=%v: calls = %d, want %d", disable, n, wantCalls)
		}
		if info.State != wantState {
			t.Errorf("disable=%v: state = %s, want %s", disable, info.State, wantState)
		}
		if disable {
			var perr *plugin.Error
			if !errors.As(info.Err, &perr) || perr.PluginID != "flaky" {
				t.Errorf("recorded error = %v, want plugin.Error for flaky", info.Err)
			}
		}
	}
}

// Package punctuation provides a plugin that capitalises the first letter of
// a transcript and closes it with a period, question mark or exclamation
// mark chosen by simple keyword heuristics.
package punctuation

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/voiceflow/internal/plugin"
)

// ID is the plugin's registry ID.
const ID = "punctuation"

// Options controls the plugin's behaviour.
type Options struct {
	// AddPeriods closes plain statements with a period.
	AddPeriods bool `yaml:"add_periods"`

	// CapitalizeFirst upper-cases the first letter.
	CapitalizeFirst bool `yaml:"capitalize_first"`
}

// DefaultOptions returns the options with every feature switched on.
func DefaultOptions() Options {
	return Options{AddPeriods: true, CapitalizeFirst: true}
}

var (
	questionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(what|when|where|who|why|how|which|whose|whom)\b`),
		regexp.MustCompile(`\b(is|are|was|were|will|would|could|should|can|do|does|did)\b.*\b(you|he|she|it|they|we)\b`),
	}
	exclamationPattern = regexp.MustCompile(`\b(wow|amazing|incredible|awesome|terrible|horrible|great|excellent|fantastic|wonderful|oh no|help)\b`)
)

// Manifest describes the plugin.
func Manifest() plugin.Manifest {
	return plugin.Manifest{
		ID:          ID,
		Name:        "Smart punctuation",
		Version:     "1.0.0",
		Description: "Capitalises the first letter and adds closing punctuation.",
		Permissions: []string{"transcript:modify"},
	}
}

// Plugin implements [plugin.Plugin].
type Plugin struct {
	opts Options
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates the plugin.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts}
}

func (p *Plugin) ID() string                     { return ID }
func (p *Plugin) OnLoad(context.Context) error   { return nil }
func (p *Plugin) OnUnload(context.Context) error { return nil }

// OnTranscription trims text and applies the configured rules. Text that
// already ends in '.', '!' or '?' keeps its ending.
func (p *Plugin) OnTranscription(_ context.Context, text string) (string, error) {
	out := strings.TrimSpace(text)
	if out == "" {
		return text, nil
	}

	if p.opts.CapitalizeFirst {
		r, size := utf8.DecodeRuneInString(out)
		out = string(unicode.ToUpper(r)) + out[size:]
	}

	switch out[len(out)-1] {
	case '.', '!', '?':
		return out, nil
	}

	lower := strings.ToLower(out)
	switch {
	case isQuestion(lower):
		out += "?"
	case exclamationPattern.MatchString(lower):
		out += "!"
	case p.opts.AddPeriods:
		out += "."
	}
	return out, nil
}

func isQuestion(lower string) bool {
	for _, re := range questionPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Package hints provides a plugin that snaps misrecognised words in a
// transcript to the user's dictionary terms using phonetic and fuzzy
// matching ("post gres" becomes "Postgres").
package hints

import (
	"context"
	"log/slog"

	"github.com/MrWong99/voiceflow/internal/observe"
	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/transcript/phonetic"
)

// ID is the plugin's registry ID.
const ID = "hints"

// Terms supplies the vocabulary to snap to. *dictionary.Context satisfies it.
type Terms interface {
	Words() []string
}

// Options tunes the matcher. Zero thresholds keep the matcher defaults.
type Options struct {
	PhoneticThreshold float64  `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64  `yaml:"fuzzy_threshold"`
	ExtraTerms        []string `yaml:"extra_terms"`
}

// Manifest describes the plugin.
func Manifest() plugin.Manifest {
	return plugin.Manifest{
		ID:          ID,
		Name:        "Dictionary hints",
		Version:     "1.0.0",
		Description: "Replaces misheard words with matching dictionary terms.",
		Permissions: []string{"transcript:modify", "dictionary:read"},
	}
}

// Plugin implements [plugin.Plugin].
type Plugin struct {
	terms   Terms
	extra   []string
	matcher *phonetic.Matcher
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates the plugin. terms may be nil, in which case only
// opts.ExtraTerms are used.
func New(terms Terms, opts Options) *Plugin {
	var mopts []phonetic.Option
	if opts.PhoneticThreshold > 0 {
		mopts = append(mopts, phonetic.WithPhoneticThreshold(opts.PhoneticThreshold))
	}
	if opts.FuzzyThreshold > 0 {
		mopts = append(mopts, phonetic.WithFuzzyThreshold(opts.FuzzyThreshold))
	}
	return &Plugin{
		terms:   terms,
		extra:   append([]string(nil), opts.ExtraTerms...),
		matcher: phonetic.New(mopts...),
	}
}

func (p *Plugin) ID() string                     { return ID }
func (p *Plugin) OnLoad(context.Context) error   { return nil }
func (p *Plugin) OnUnload(context.Context) error { return nil }

// OnTranscription replaces words that sound like a known term with the term
// itself. Text is returned unchanged when there are no terms.
func (p *Plugin) OnTranscription(ctx context.Context, text string) (string, error) {
	var terms []string
	if p.terms != nil {
		terms = p.terms.Words()
	}
	terms = append(terms, p.extra...)
	if len(terms) == 0 || text == "" {
		return text, nil
	}

	out, reps := p.matcher.Snap(text, terms)
	if len(reps) > 0 {
		log := observe.Logger(ctx)
		for _, r := range reps {
			log.Debug("hints: replaced phrase",
				"original", r.Original,
				"term", r.Term,
				slog.Float64("score", r.Score))
		}
	}
	return out, nil
}

// Package filler provides a plugin that strips spoken filler words ("um",
// "uh", "you know", 嗯, 呃, 음 …) from transcripts and tidies the spacing and
// commas they leave behind.
package filler

import (
	"context"
	"regexp"
	"strings"

	"github.com/MrWong99/voiceflow/internal/plugin"
)

// ID is the plugin's registry ID.
const ID = "filler"

// Options selects the filler vocabularies to strip.
type Options struct {
	English bool `yaml:"english"`
	Chinese bool `yaml:"chinese"`
	Korean  bool `yaml:"korean"`
}

// DefaultOptions enables every vocabulary.
func DefaultOptions() Options {
	return Options{English: true, Chinese: true, Korean: true}
}

var (
	englishFillers = regexp.MustCompile(`(?i)\b(?:um+|uh+|you know)\b`)

	// Words that only count as filler when a comma follows them.
	englishCommaFillers = regexp.MustCompile(`(?i)\b(?:like|basically|literally|right|so)\s*,`)

	chineseFillers = regexp.MustCompile(`嗯+|呃+|啊{2,}|哦+|额+|怎么说呢[，,\s]*`)

	// Korean fillers are common syllables, so only whole tokens go.
	koreanFillers = regexp.MustCompile(`(?:^|\s)(?:어+|음+|그+|저+|뭐+)(?:\s|$)`)

	repeatedCommas  = regexp.MustCompile(`([,，])\s*[,，]`)
	spaceBeforeMark = regexp.MustCompile(`\s+([,，.。!！?？;；:：])`)
	leadingMarks    = regexp.MustCompile(`^[\s，,。.！!？?、;；:：]+`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// Manifest describes the plugin.
func Manifest() plugin.Manifest {
	return plugin.Manifest{
		ID:          ID,
		Name:        "Filler word removal",
		Version:     "1.0.0",
		Description: "Removes spoken filler words in English, Chinese and Korean.",
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

// OnTranscription removes fillers. Blank input is returned unchanged.
func (p *Plugin) OnTranscription(_ context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	out := text

	if p.opts.English {
		out = englishFillers.ReplaceAllString(out, " ")
		out = englishCommaFillers.ReplaceAllString(out, ",")
	}
	if p.opts.Chinese {
		out = chineseFillers.ReplaceAllString(out, "")
	}
	if p.opts.Korean {
		out = untilStable(out, func(s string) string { return koreanFillers.ReplaceAllString(s, " ") })
	}

	out = untilStable(out, func(s string) string { return repeatedCommas.ReplaceAllString(s, "$1") })
	out = spaceBeforeMark.ReplaceAllString(out, "$1")
	out = leadingMarks.ReplaceAllString(out, "")
	out = whitespaceRun.ReplaceAllString(out, " ")
	return strings.TrimSpace(out), nil
}

// untilStable applies fn until the string stops changing. Matches that share
// a separator with a previous match are only found on the next pass.
func untilStable(s string, fn func(string) string) string {
	for {
		next := fn(s)
		if next == s {
			return s
		}
		s = next
	}
}

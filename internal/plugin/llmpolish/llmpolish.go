// Package llmpolish provides a plugin that rewrites transcripts with a chat
// completion model behind any OpenAI-compatible API.
//
// Calls are guarded by a circuit breaker: after repeated failures the plugin
// fails fast with [resilience.ErrOpen] and the chain passes the text on
// unchanged until the cooldown has elapsed.
package llmpolish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/voiceflow/internal/observe"
	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/resilience"
)

// ID is the plugin's registry ID.
const ID = "llmpolish"

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("llmpolish: empty response")

// Scene prompts keyed by name.
var scenePrompts = map[string]string{
	"general": `You post-process speech recognition output. Polish the text:
1. Fix obvious recognition errors.
2. Remove spoken filler words.
3. Add appropriate punctuation.
4. Keep the meaning; do not add or remove content.

Output only the polished text, without any explanation.`,

	"coding": `You post-process speech recognition output dictated while programming. Polish the text:
1. Recognise and correctly format code terms (identifiers, function names, technical terms).
2. Fix common misrecognitions of programming vocabulary.
3. Remove spoken filler.
4. Keep technical accuracy.

Output only the polished text, without any explanation.`,

	"writing": `You post-process speech recognition output for written prose. Polish the text:
1. Fix grammar and awkward phrasing.
2. Make the sentence structure suitable for writing.
3. Add appropriate punctuation.
4. Keep the meaning and the author's style.

Output only the polished text, without any explanation.`,

	"social": `You post-process speech recognition output for a chat message. Polish the text:
1. Keep the casual, spoken tone.
2. Fix obvious recognition errors.
3. Keep words that carry emotion.
4. Add appropriate punctuation.

Output only the polished text, without any explanation.`,
}

// Options configures the plugin.
type Options struct {
	// APIKey authenticates against the API. When empty, the environment
	// variable named by APIKeyEnv is read instead.
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the API endpoint, e.g. a local Ollama or vLLM server.
	BaseURL string `yaml:"base_url"`

	// Model is the chat model name. Required.
	Model string `yaml:"model"`

	// Temperature is passed through when non-zero.
	Temperature float64 `yaml:"temperature"`

	// Timeout bounds each request. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// Scene selects a built-in prompt: general, coding, writing or social.
	// Default: general.
	Scene string `yaml:"scene"`

	// Prompt replaces the scene prompt when set.
	Prompt string `yaml:"prompt"`

	// MaxFailures and Cooldown tune the circuit breaker.
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`

	// HTTPClient overrides the transport. Not configurable from YAML.
	HTTPClient *http.Client `yaml:"-"`
}

// Manifest describes the plugin.
func Manifest() plugin.Manifest {
	return plugin.Manifest{
		ID:          ID,
		Name:        "LLM polish",
		Version:     "1.0.0",
		Description: "Rewrites transcripts with a chat completion model.",
		Permissions: []string{"transcript:modify", "network"},
	}
}

// Plugin implements [plugin.Plugin].
type Plugin struct {
	client  oai.Client
	model   string
	temp    float64
	timeout time.Duration
	prompt  string
	breaker *resilience.Breaker
}

var _ plugin.Plugin = (*Plugin)(nil)

// New validates opts and creates the plugin. No request is made until the
// first transcript.
func New(opts Options) (*Plugin, error) {
	apiKey := opts.APIKey
	if apiKey == "" && opts.APIKeyEnv != "" {
		apiKey = os.Getenv(opts.APIKeyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("llmpolish: api key must not be empty")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llmpolish: model must not be empty")
	}

	prompt := opts.Prompt
	if prompt == "" {
		scene := opts.Scene
		if scene == "" {
			scene = "general"
		}
		var ok bool
		if prompt, ok = scenePrompts[scene]; !ok {
			return nil, fmt.Errorf("llmpolish: unknown scene %q", scene)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Plugin{
		client:  oai.NewClient(reqOpts...),
		model:   opts.Model,
		temp:    opts.Temperature,
		timeout: timeout,
		prompt:  prompt,
		breaker: resilience.New(resilience.Config{
			Name:        ID,
			MaxFailures: opts.MaxFailures,
			Cooldown:    opts.Cooldown,
		}),
	}, nil
}

func (p *Plugin) ID() string                     { return ID }
func (p *Plugin) OnLoad(context.Context) error   { return nil }
func (p *Plugin) OnUnload(context.Context) error { return nil }

// OnTranscription sends text to the model and returns its answer, trimmed.
// Blank text is returned without a request.
func (p *Plugin) OnTranscription(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	var out string
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.complete(ctx, text)
		return err
	})
	if err != nil {
		return "", err
	}

	observe.Logger(ctx).Debug("llmpolish: polished transcript", "in_len", len(text), "out_len", len(out))
	return out, nil
}

func (p *Plugin) complete(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(p.prompt),
			oai.UserMessage(text),
		},
	}
	if p.temp != 0 {
		params.Temperature = param.NewOpt(p.temp)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmpolish: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// Package ai backs executor.AIProvider for AI_GENERATED steps: an Anthropic
// client as primary, a Bedrock client as secondary, and a deduplicating
// decorator that collapses identical in-flight prompts (spec.md §4.3, §6).
package ai

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/ratelimit"
)

// AnthropicProvider is the primary executor.AIProvider backend.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
	guard  *ratelimit.Guard
}

// NewAnthropicProvider builds a provider against apiKey, defaulting to
// Claude Sonnet 4.5 when model is empty.
func NewAnthropicProvider(apiKey string, model anthropic.Model, guard *ratelimit.Guard) *AnthropicProvider {
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client, model: model, guard: guard}
}

// Complete satisfies executor.AIProvider.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, schemaHash string) (string, string, error) {
	call := func(ctx context.Context) (interface{}, error) {
		msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     p.model,
			MaxTokens: 2048,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return nil, apperror.Wrapf(err, apperror.KindTransient, "anthropic completion failed")
		}
		if len(msg.Content) == 0 {
			return nil, apperror.New(apperror.KindAIResponseInvalid, "anthropic returned no content blocks")
		}
		return msg.Content[0].Text, nil
	}

	var result interface{}
	var err error
	if p.guard != nil {
		result, err = p.guard.Do(ctx, call)
	} else {
		result, err = call(ctx)
	}
	if err != nil {
		return "", "", err
	}
	return result.(string), string(p.model), nil
}

// BedrockProvider is the secondary executor.AIProvider backend, invoked by
// FallbackProvider when Anthropic is unavailable.
type BedrockProvider struct {
	invoke  func(ctx context.Context, modelID, prompt string) (string, error)
	modelID string
	guard   *ratelimit.Guard
}

// NewBedrockProvider takes invoke rather than a concrete aws-sdk-go-v2
// client so tests can substitute a fake without a live AWS session; the
// production wiring in cmd/workflow-service constructs invoke from a
// bedrockruntime.Client's InvokeModel call.
func NewBedrockProvider(modelID string, invoke func(ctx context.Context, modelID, prompt string) (string, error), guard *ratelimit.Guard) *BedrockProvider {
	return &BedrockProvider{invoke: invoke, modelID: modelID, guard: guard}
}

func (p *BedrockProvider) Complete(ctx context.Context, prompt string, schemaHash string) (string, string, error) {
	call := func(ctx context.Context) (interface{}, error) {
		text, err := p.invoke(ctx, p.modelID, prompt)
		if err != nil {
			return nil, apperror.Wrapf(err, apperror.KindTransient, "bedrock completion failed")
		}
		return text, nil
	}

	var result interface{}
	var err error
	if p.guard != nil {
		result, err = p.guard.Do(ctx, call)
	} else {
		result, err = call(ctx)
	}
	if err != nil {
		return "", "", err
	}
	return result.(string), p.modelID, nil
}

// FallbackProvider tries primary first; on a Transient, RateLimited or
// Timeout error it retries once against secondary (spec.md §6: "the AI boundary may be
// backed by more than one provider; failover is the caller's concern, not
// the executor's").
type FallbackProvider struct {
	primary   executorAIProvider
	secondary executorAIProvider
}

// executorAIProvider mirrors executor.AIProvider's method set without
// importing pkg/executor, avoiding an import cycle (pkg/executor wires
// pkg/ai, not the reverse).
type executorAIProvider interface {
	Complete(ctx context.Context, prompt string, schemaHash string) (text string, modelID string, err error)
}

func NewFallbackProvider(primary, secondary executorAIProvider) *FallbackProvider {
	return &FallbackProvider{primary: primary, secondary: secondary}
}

func (f *FallbackProvider) Complete(ctx context.Context, prompt string, schemaHash string) (string, string, error) {
	text, model, err := f.primary.Complete(ctx, prompt, schemaHash)
	if err == nil || f.secondary == nil {
		return text, model, err
	}
	if !apperror.Is(err, apperror.KindTransient) && !apperror.Is(err, apperror.KindRateLimited) && !apperror.Is(err, apperror.KindTimeout) {
		return text, model, err
	}
	return f.secondary.Complete(ctx, prompt, schemaHash)
}

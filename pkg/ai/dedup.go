package ai

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// DedupingProvider collapses concurrent identical completions (same prompt
// and schema hash) into a single upstream call, sharing the result with
// every caller that arrived while it was in flight. This is where
// golang.org/x/sync/singleflight is wired: the scheduler dispatches steps
// without visibility into a prompt's rendered text or schema hash until the
// AI_GENERATED executor builds them, so the dedup boundary has to sit at the
// provider rather than in C6's dispatch loop.
type DedupingProvider struct {
	inner executorAIProvider
	group singleflight.Group
}

func NewDedupingProvider(inner executorAIProvider) *DedupingProvider {
	return &DedupingProvider{inner: inner}
}

type completion struct {
	text    string
	modelID string
}

func (d *DedupingProvider) Complete(ctx context.Context, prompt string, schemaHash string) (string, string, error) {
	key := schemaHash + "\x00" + prompt
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		text, modelID, err := d.inner.Complete(ctx, prompt, schemaHash)
		if err != nil {
			return nil, err
		}
		return completion{text: text, modelID: modelID}, nil
	})
	if err != nil {
		return "", "", err
	}
	c := v.(completion)
	return c.text, c.modelID, nil
}

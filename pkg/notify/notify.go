// Package notify sends best-effort operator notifications — an execution
// reaching FAILED, or pausing for input longer than expected — supplementing
// spec.md's boundary layer with the out-of-band channel a production
// deployment needs (spec.md §6 notes the boundary is the sole sanctioned
// entry/exit point; notify is an observer of engine events, not a second
// entry point).
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// Notifier is the contract the boundary layer's background drive loop calls
// into when an execution ends FAILED or pauses for input. A nil
// Notifier (NoopNotifier) is valid and silently drops everything.
type Notifier interface {
	ExecutionFailed(ctx context.Context, exec types.WorkflowExecution) error
	ExecutionAwaitingInput(ctx context.Context, exec types.WorkflowExecution, stepID, prompt string) error
}

// NoopNotifier discards every event; the default when no channel is configured.
type NoopNotifier struct{}

func (NoopNotifier) ExecutionFailed(context.Context, types.WorkflowExecution) error        { return nil }
func (NoopNotifier) ExecutionAwaitingInput(context.Context, types.WorkflowExecution, string, string) error {
	return nil
}

// SlackNotifier posts to a single channel via a Slack bot token.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token), channel: channel}
}

func (n *SlackNotifier) ExecutionFailed(ctx context.Context, exec types.WorkflowExecution) error {
	msg := fmt.Sprintf(":x: execution `%s` (workflow `%s` v%d) for principal `%s` FAILED",
		exec.ExecutionID, exec.WorkflowID, exec.WorkflowVersion, exec.PrincipalID)
	if exec.Error != nil {
		msg += fmt.Sprintf(": *%s* — %s", exec.Error.Code, exec.Error.Message)
	}
	return n.post(ctx, msg)
}

func (n *SlackNotifier) ExecutionAwaitingInput(ctx context.Context, exec types.WorkflowExecution, stepID, prompt string) error {
	msg := fmt.Sprintf(":hourglass: execution `%s` paused at step `%s`: %s", exec.ExecutionID, stepID, prompt)
	return n.post(ctx, msg)
}

func (n *SlackNotifier) post(ctx context.Context, text string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	return err
}

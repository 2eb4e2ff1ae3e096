package executor_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

type fakeAIProvider struct {
	text    string
	modelID string
	err     error

	lastPrompt string
}

func (f *fakeAIProvider) Complete(_ context.Context, prompt, _ string) (string, string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", "", f.err
	}
	return f.text, f.modelID, nil
}

var _ = Describe("AIGeneratedExecutor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	spec := types.StepSpec{
		ID:       "e",
		Kind:     types.StepKindAIGenerated,
		AIPrompt: "Summarize risk for {{risk_tolerance}}",
		Config: map[string]interface{}{
			"response_schema": map[string]interface{}{
				"required": []interface{}{"summary"},
			},
			"allowed_context_keys": []interface{}{"risk_tolerance", "ssn"},
			"sensitive_keys":       []interface{}{"ssn"},
		},
	}

	snapshot := types.ContextSnapshot{Data: map[string]types.Value{
		"risk_tolerance": types.String("moderate"),
		"ssn":             types.String("111-22-3333"),
	}}

	It("strips sensitive keys from the outbound prompt even when allowlisted", func() {
		provider := &fakeAIProvider{text: `{"summary":"ok"}`, modelID: "claude-x"}
		e := executor.NewAIGeneratedExecutor(provider)
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultDone))
		Expect(provider.lastPrompt).NotTo(ContainSubstring("111-22-3333"))
		Expect(provider.lastPrompt).To(ContainSubstring("moderate"))
	})

	It("emits ai_<step_id> and tags the model id and content hash", func() {
		provider := &fakeAIProvider{text: `{"summary":"ok"}`, modelID: "claude-x"}
		e := executor.NewAIGeneratedExecutor(provider)
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Delta).To(HaveKey("ai_e"))
		Expect(result.Delta["ai_e_model"].StrVal).To(Equal("claude-x"))
		Expect(result.Delta["ai_e_content_hash"].StrVal).NotTo(BeEmpty())
	})

	It("fails with AIResponseInvalid when the response isn't valid JSON", func() {
		provider := &fakeAIProvider{text: "not json"}
		e := executor.NewAIGeneratedExecutor(provider)
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultFailed))
		Expect(result.ErrorKind).To(Equal(apperror.KindAIResponseInvalid))
		Expect(result.Retryable).To(BeTrue())
	})

	It("fails with AIResponseInvalid when a declared property has the wrong type", func() {
		typedSpec := types.StepSpec{
			ID:   "g",
			Kind: types.StepKindAIGenerated,
			Config: map[string]interface{}{
				"response_schema": map[string]interface{}{
					"required": []interface{}{"allocation"},
					"properties": map[string]interface{}{
						"allocation": map[string]interface{}{"type": "object"},
					},
				},
			},
		}
		provider := &fakeAIProvider{text: `{"allocation":"n/a"}`}
		e := executor.NewAIGeneratedExecutor(provider)
		result := e.Execute(ctx, typedSpec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultFailed))
		Expect(result.ErrorKind).To(Equal(apperror.KindAIResponseInvalid))
		Expect(result.Retryable).To(BeTrue())
	})

	It("fails with AIResponseInvalid when a required schema key is missing", func() {
		provider := &fakeAIProvider{text: `{"other":"x"}`}
		e := executor.NewAIGeneratedExecutor(provider)
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.ErrorKind).To(Equal(apperror.KindAIResponseInvalid))
	})

	It("propagates the provider's apperror.Kind and retryability on failure", func() {
		provider := &fakeAIProvider{err: apperror.NewRateLimited("anthropic")}
		e := executor.NewAIGeneratedExecutor(provider)
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.ErrorKind).To(Equal(apperror.KindRateLimited))
		Expect(result.Retryable).To(BeTrue())
	})

	It("treats a plain error from the provider as Transient", func() {
		provider := &fakeAIProvider{err: errors.New("connection reset")}
		e := executor.NewAIGeneratedExecutor(provider)
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.ErrorKind).To(Equal(apperror.KindTransient))
	})
})

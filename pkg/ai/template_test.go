package ai_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/pkg/ai"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

var _ = Describe("TemplateRenderer", func() {
	It("substitutes context values into a Go-template prompt", func() {
		r := ai.NewTemplateRenderer()
		out, err := r.Render("Client risk tolerance is {{.risk_tolerance}}.", map[string]types.Value{
			"risk_tolerance": types.String("aggressive"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("Client risk tolerance is aggressive."))
	})

	It("flattens decimal and list values to readable text", func() {
		r := ai.NewTemplateRenderer()
		out, err := r.Render("Weights: {{.weights}}", map[string]types.Value{
			"weights": types.List([]types.Value{types.DecimalFromFloat(0.5, 2), types.DecimalFromFloat(0.5, 2)}),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("0.5"))
	})
})

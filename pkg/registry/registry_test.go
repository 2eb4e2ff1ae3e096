package registry_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/registry"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

func TestRegistry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "registry Suite")
}

// linearSuccessDefinition builds a linear three-step workflow: a -> b -> c.
func linearSuccessDefinition() types.WorkflowDefinition {
	return types.WorkflowDefinition{
		ID:   "W1",
		Name: "risk profile",
		Steps: []types.StepSpec{
			{
				ID:   "a",
				Name: "collect risk tolerance",
				Kind: types.StepKindDataCollection,
				Config: map[string]interface{}{
					"fields": []interface{}{
						map[string]interface{}{"key": "risk_tolerance", "type": "string", "required": true},
					},
				},
			},
			{
				ID:           "b",
				Name:         "choose profile",
				Kind:         types.StepKindDecision,
				Dependencies: []string{"a"},
				Config: map[string]interface{}{
					"inputType": "single",
					"options":   []interface{}{"conservative", "balanced", "aggressive"},
				},
			},
			{
				ID:           "c",
				Name:         "finalize",
				Kind:         types.StepKindAutomated,
				Dependencies: []string{"b"},
				Config: map[string]interface{}{
					"transform": "normalize_profile",
				},
			},
		},
		EntryPoints: []string{"a"},
		ExitPoints:  []string{"c"},
	}
}

var _ = Describe("Registry", func() {
	var (
		ctx context.Context
		reg *registry.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = registry.New(registry.NewMemoryStore(), steplibrary.New())
	})

	Describe("Register", func() {
		Context("with a well-formed linear workflow", func() {
			It("persists it under version 1", func() {
				id, version, err := reg.Register(ctx, linearSuccessDefinition())
				Expect(err).NotTo(HaveOccurred())
				Expect(id).To(Equal("W1"))
				Expect(version).To(Equal(1))
			})

			It("allocates successive versions on repeated publish", func() {
				def := linearSuccessDefinition()
				_, v1, err := reg.Register(ctx, def)
				Expect(err).NotTo(HaveOccurred())
				_, v2, err := reg.Register(ctx, def)
				Expect(err).NotTo(HaveOccurred())
				Expect(v2).To(Equal(v1 + 1))
			})
		})

		Context("with a cyclic dependency graph", func() {
			It("fails with CyclicDependencies and persists nothing", func() {
				def := linearSuccessDefinition()
				// b depends on c, c depends on b: a cycle that excludes the
				// always-reachable entry `a`.
				def.Steps[1].Dependencies = []string{"a", "c"}
				def.Steps[2].Dependencies = []string{"b"}

				_, _, err := reg.Register(ctx, def)
				Expect(err).To(HaveOccurred())
				Expect(apperror.Is(err, apperror.KindCyclicDependencies)).To(BeTrue())

				_, err = reg.Get(ctx, "W1", 0)
				Expect(apperror.Is(err, apperror.KindNotFound)).To(BeTrue())
			})
		})

		Context("with duplicate step ids", func() {
			It("fails with DuplicateStepId", func() {
				def := linearSuccessDefinition()
				dup := def.Steps[0]
				dup.Dependencies = []string{"a"}
				def.Steps = append(def.Steps, dup)
				def.Steps[3].ID = "a"

				_, _, err := reg.Register(ctx, def)
				Expect(err).To(HaveOccurred())
				Expect(apperror.Is(err, apperror.KindDuplicateStepId)).To(BeTrue())
			})
		})

		Context("with an entry point that declares dependencies", func() {
			It("fails with InvalidEntryExit", func() {
				def := linearSuccessDefinition()
				def.Steps[0].Dependencies = []string{"b"}

				_, _, err := reg.Register(ctx, def)
				Expect(err).To(HaveOccurred())
				Expect(apperror.Is(err, apperror.KindInvalidEntryExit)).To(BeTrue())
			})
		})

		Context("with an incompatible step config", func() {
			It("fails with IncompatibleStepConfig", func() {
				def := linearSuccessDefinition()
				def.Steps[1].Config = map[string]interface{}{"inputType": "single"} // options missing

				_, _, err := reg.Register(ctx, def)
				Expect(err).To(HaveOccurred())
				Expect(apperror.Is(err, apperror.KindIncompatibleConfig)).To(BeTrue())
			})
		})
	})

	Describe("Get", func() {
		It("returns NotFound for an unpublished id", func() {
			_, err := reg.Get(ctx, "missing", 0)
			Expect(apperror.Is(err, apperror.KindNotFound)).To(BeTrue())
		})

		It("returns the latest version when version is 0", func() {
			def := linearSuccessDefinition()
			reg.Register(ctx, def)
			reg.Register(ctx, def)

			got, err := reg.Get(ctx, "W1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Version).To(Equal(2))
		})
	})

	Describe("Validate", func() {
		It("returns a report without persisting", func() {
			report, err := reg.Validate(linearSuccessDefinition())
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Summary.Failed).To(Equal(0))
			Expect(report.Summary.Total).To(BeNumerically(">", 0))

			_, getErr := reg.Get(ctx, "W1", 0)
			Expect(apperror.Is(getErr, apperror.KindNotFound)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("filters by category", func() {
			a := linearSuccessDefinition()
			a.ID, a.Category = "W1", "portfolio"
			b := linearSuccessDefinition()
			b.ID, b.Category = "W2", "assessment"

			reg.Register(ctx, a)
			reg.Register(ctx, b)

			portfolios, err := reg.List(ctx, "portfolio")
			Expect(err).NotTo(HaveOccurred())
			Expect(portfolios).To(HaveLen(1))
			Expect(portfolios[0].ID).To(Equal("W1"))
		})
	})
})

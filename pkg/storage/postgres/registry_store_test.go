package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

func newMockDB() (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	Expect(err).ToNot(HaveOccurred())
	return sqlx.NewDb(db, "sqlmock"), mock
}

var _ = Describe("RegistryStore", func() {
	var (
		store *RegistryStore
		mock  sqlmock.Sqlmock
		ctx   context.Context
	)

	BeforeEach(func() {
		var db *sqlx.DB
		db, mock = newMockDB()
		store = NewRegistryStore(db)
		ctx = context.Background()
	})

	Describe("NextVersion", func() {
		It("returns 1 when no versions exist yet", func() {
			mock.ExpectQuery(`SELECT MAX\(version\) FROM workflow_definitions`).
				WithArgs("wf-1").
				WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

			v, err := store.NextVersion(ctx, "wf-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(1))
		})

		It("returns the next version after the current max", func() {
			mock.ExpectQuery(`SELECT MAX\(version\) FROM workflow_definitions`).
				WithArgs("wf-1").
				WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))

			v, err := store.NextVersion(ctx, "wf-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(4))
		})
	})

	Describe("Save and Get", func() {
		It("round-trips a definition through JSON", func() {
			def := &types.WorkflowDefinition{ID: "wf-1", Version: 2, Name: "Refund Review", Category: "refunds"}
			raw, err := json.Marshal(def)
			Expect(err).ToNot(HaveOccurred())

			mock.ExpectExec(`INSERT INTO workflow_definitions`).
				WithArgs(def.ID, def.Version, def.Name, def.Description, def.Category, raw, def.AIConfigurable, def.PublishedAt).
				WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(store.Save(ctx, def)).To(Succeed())

			mock.ExpectQuery(`SELECT definition FROM workflow_definitions`).
				WithArgs("wf-1", 2).
				WillReturnRows(sqlmock.NewRows([]string{"definition"}).AddRow(raw))

			got, found, err := store.Get(ctx, "wf-1", 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(got.Name).To(Equal("Refund Review"))
		})

		It("reports not found when no row matches", func() {
			mock.ExpectQuery(`SELECT definition FROM workflow_definitions`).
				WithArgs("missing", 1).
				WillReturnError(sql.ErrNoRows)

			_, found, err := store.Get(ctx, "missing", 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(BeFalse())
		})
	})

	Describe("List", func() {
		It("scans every summary column positionally", func() {
			published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			mock.ExpectQuery(`SELECT DISTINCT ON \(id\)`).
				WillReturnRows(sqlmock.NewRows([]string{"id", "version", "name", "category", "published_at"}).
					AddRow("wf-1", 3, "Refund Review", "refunds", published))

			out, err := store.List(ctx, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0]).To(Equal(types.WorkflowSummary{
				ID: "wf-1", Version: 3, Name: "Refund Review", Category: "refunds", PublishedAt: published,
			}))
		})
	})
})

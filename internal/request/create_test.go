package request_test

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/request"
)

// TestRecordTableDDL_Golden pins the DDL generated from the record table
// descriptors. A diff here means the physical schema changed; that is only
// acceptable together with a migration step, so review before running
// go test ./internal/request -update.
func TestRecordTableDDL_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	helpers := append(record.BaseHelpers(),
		record.SkinTemperatureHelper(),
		record.PlannedExerciseHelper(),
		record.MedicalResourceHelper(),
	)

	for _, h := range helpers {
		req := request.CreateTableRequest{Table: h.Table()}
		stmts := req.Statements()
		stmts = append(stmts, req.DeferredColumnStatements()...)

		g.Assert(t, string(h.Type())+"_schema",
			[]byte(strings.Join(stmts, ";\n\n")+"\n"))
	}
}

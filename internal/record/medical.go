package record

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

const (
	medicalTable      = "medical_resource"
	colTime           = "time"
	colDataSourceID   = "data_source_id"
	colFHIRType       = "fhir_resource_type"
	colFHIRID         = "fhir_resource_id"
	colFHIRData       = "fhir_data"
	medicalIDDelim    = "\x00"
)

// medicalResourceNamespace is the UUIDv5-style namespace under which FHIR
// resource identities are hashed.
var medicalResourceNamespace = uuid.MustParse("8ab3f5f7-7860-4f5d-9f5e-2b2a5c3a1d10")

// MedicalResourceUUID derives the stable identifier of a FHIR resource from
// its identity triple. Inputs are NFC-normalized first so the same logical
// id produces the same UUID regardless of the Unicode encoding the source
// happened to use. Writing the same triple twice is therefore always an
// upsert, never a duplicate.
func MedicalResourceUUID(dataSourceID, fhirType, fhirID string) string {
	name := norm.NFC.String(dataSourceID) + medicalIDDelim +
		norm.NFC.String(fhirType) + medicalIDDelim +
		norm.NFC.String(fhirID)
	return uuid.NewSHA1(medicalResourceNamespace, []byte(name)).String()
}

// medicalHelper handles FHIR medical resources. Flag-gated: the table is
// created by the personal-health-record guarded upgrade.
type medicalHelper struct{}

func (medicalHelper) Type() datatypes.RecordType { return datatypes.TypeMedicalResource }

func (medicalHelper) Table() schema.Table {
	return schema.Table{
		Name: medicalTable,
		Columns: append(schema.RecordColumns(),
			schema.Column{Name: colTime, Type: schema.Integer, NotNull: true},
			schema.Column{Name: colDataSourceID, Type: schema.Text, NotNull: true},
			schema.Column{Name: colFHIRType, Type: schema.Text, NotNull: true},
			schema.Column{Name: colFHIRID, Type: schema.Text, NotNull: true},
			schema.Column{Name: colFHIRData, Type: schema.Text, NotNull: true},
		),
		Unique: append(schema.RecordConstraints(),
			[]string{colDataSourceID, colFHIRType, colFHIRID}),
		ForeignKeys: []schema.ForeignKey{schema.AppInfoForeignKey()},
	}
}

func (medicalHelper) UpsertValues(r datatypes.Record, appInfoID int64) (map[string]any, error) {
	rec, err := typed[*datatypes.MedicalResource](r)
	if err != nil {
		return nil, err
	}

	// The UUID is always derived, never caller-chosen.
	rec.Metadata.UUID = MedicalResourceUUID(rec.DataSourceID, rec.FHIRType, rec.FHIRID)

	return merge(
		recordValues(r.Meta(), appInfoID),
		map[string]any{
			colTime:         rec.Time.UnixMilli(),
			colDataSourceID: rec.DataSourceID,
			colFHIRType:     rec.FHIRType,
			colFHIRID:       rec.FHIRID,
			colFHIRData:     rec.Body,
		},
	), nil
}

func (medicalHelper) ChildUpserts(datatypes.Record) ([]request.ChildUpsert, error) {
	return nil, nil
}

func (medicalHelper) ReadColumns() []string {
	return readColumns(colTime, colDataSourceID, colFHIRType, colFHIRID, colFHIRData)
}

func (medicalHelper) ScanRecord(scan RowScanner) (datatypes.Record, int64, error) {
	var core rowCore
	var t int64
	var dataSource, fhirType, fhirID, body string

	dests := append(core.dests(), &t, &dataSource, &fhirType, &fhirID, &body)
	if err := scan.Scan(dests...); err != nil {
		return nil, 0, err
	}

	return &datatypes.MedicalResource{
		Metadata:     core.metadata(),
		Time:         time.UnixMilli(t).UTC(),
		DataSourceID: dataSource,
		FHIRType:     fhirType,
		FHIRID:       fhirID,
		Body:         body,
	}, core.rowID, nil
}

func (medicalHelper) ChildReadColumns(string) []string { return nil }

func (medicalHelper) ScanChildRow(table string, _ RowScanner) (int64, any, error) {
	return 0, nil, errNoChildTable(medicalTable, table)
}

func (medicalHelper) SetChildren(_ datatypes.Record, table string, _ []any) error {
	return errNoChildTable(medicalTable, table)
}

func (medicalHelper) Aggregate(AggregationType) (AggregateSpec, bool) {
	return AggregateSpec{}, false
}

func (medicalHelper) EffectsOfDelete([]string) []EffectRead { return nil }
func (medicalHelper) EffectsOfUpsert([]string) []EffectRead { return nil }

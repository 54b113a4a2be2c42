// Package schema holds the static table and column descriptors for every
// record type. Descriptors are pure data: request builders turn them into
// SQL, the migration engine decides when they are applied.
package schema

// ColumnType is the SQLite storage class declared for a column.
type ColumnType string

const (
	Integer ColumnType = "INTEGER"
	Real    ColumnType = "REAL"
	Text    ColumnType = "TEXT"
	Blob    ColumnType = "BLOB"
)

// Column describes one column of a table.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool

	// PrimaryKey marks the auto-increment row identifier. At most one
	// column per table may set it.
	PrimaryKey bool
}

// ForeignKey declares a reference from Column to RefTable.RefColumn.
//
// Deferred foreign keys are excluded from the CREATE TABLE statement and
// applied later via ALTER TABLE ADD COLUMN, so a table may reference another
// table that has not been created yet.
type ForeignKey struct {
	Column          string
	RefTable        string
	RefColumn       string
	CascadeDelete   bool
	SetNullOnDelete bool
	Deferred        bool

	// ColumnType is the declared type of a deferred foreign-key column,
	// since the column is created by the ALTER itself. Defaults to
	// Integer when empty.
	ColumnType ColumnType
}

// Table describes a physical table, its unique constraints, foreign keys,
// and any child tables keyed to this table's row identifier.
type Table struct {
	Name        string
	Columns     []Column
	Unique      [][]string
	ForeignKeys []ForeignKey
	Children    []Table
}

// Column names shared by every record table.
const (
	ColRowID            = "row_id"
	ColUUID             = "uuid"
	ColAppInfoID        = "app_info_id"
	ColClientRecordID   = "client_record_id"
	ColLastModifiedTime = "last_modified_time"
	ColStartTime        = "start_time"
	ColEndTime          = "end_time"
	ColStartZoneOffset  = "start_zone_offset"
	ColEndZoneOffset    = "end_zone_offset"
	ColPackageName      = "package_name"
)

// AppInfoTable is the interned owning-application identity table. Every
// record table's app_info_id column references it.
const AppInfoTable = "application_info"

// AppInfo returns the descriptor for the application identity table.
func AppInfo() Table {
	return Table{
		Name: AppInfoTable,
		Columns: []Column{
			{Name: ColRowID, Type: Integer, PrimaryKey: true},
			{Name: ColPackageName, Type: Text, NotNull: true},
		},
		Unique: [][]string{{ColPackageName}},
	}
}

// RecordColumns returns the columns common to every record table: the row
// identifier, the external UUID, the owning app, the optional client record
// id, and the last-modified timestamp.
func RecordColumns() []Column {
	return []Column{
		{Name: ColRowID, Type: Integer, PrimaryKey: true},
		{Name: ColUUID, Type: Text, NotNull: true},
		{Name: ColAppInfoID, Type: Integer, NotNull: true},
		{Name: ColClientRecordID, Type: Text},
		{Name: ColLastModifiedTime, Type: Integer, NotNull: true},
	}
}

// IntervalColumns returns the start/end time columns used by interval record
// types. Zone offsets are seconds east of UTC, nullable for legacy rows.
func IntervalColumns() []Column {
	return []Column{
		{Name: ColStartTime, Type: Integer, NotNull: true},
		{Name: ColEndTime, Type: Integer, NotNull: true},
		{Name: ColStartZoneOffset, Type: Integer},
		{Name: ColEndZoneOffset, Type: Integer},
	}
}

// RecordConstraints returns the unique constraints shared by record tables:
// the external UUID, and (app, client record id) for client-keyed upserts.
func RecordConstraints() [][]string {
	return [][]string{
		{ColUUID},
		{ColAppInfoID, ColClientRecordID},
	}
}

// AppInfoForeignKey returns the owning-app reference carried by every record
// table.
func AppInfoForeignKey() ForeignKey {
	return ForeignKey{
		Column:    ColAppInfoID,
		RefTable:  AppInfoTable,
		RefColumn: ColRowID,
	}
}

// ChildForeignKey returns the parent reference for a child/series table.
// Cascade delete is mandatory: the transaction manager never deletes child
// rows explicitly when a parent is deleted.
func ChildForeignKey(column, parentTable string) ForeignKey {
	return ForeignKey{
		Column:        column,
		RefTable:      parentTable,
		RefColumn:     ColRowID,
		CascadeDelete: true,
	}
}

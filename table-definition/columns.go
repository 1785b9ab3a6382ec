package tabledefinition

import (
	"fmt"
	"strings"

	"github.com/cevaris/ordered_map"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
)

// TableColumn defines a single target column.
// Source is the header of the field in the input files; it is empty for derived columns.
type TableColumn struct {
	Source string
	Target string
	Type   DataType
}

// TableColumns is the declared target schema: an ordered list of columns plus the columns used to rank rows.
type TableColumns struct {
	Columns       []TableColumn
	BusinessKey   string
	RecencyColumn string
}

const (
	caseBusinessKey   = "case_number"
	caseRecencyColumn = "last_modified_date"
)

// BuiltInCaseColumns returns the case schema used when the job settings don't declare their own columns.
func BuiltInCaseColumns() TableColumns {
	return TableColumns{
		Columns: []TableColumn{
			{Source: "Case Number", Target: caseBusinessKey, Type: TypeString},
			{Source: "Last Modified Date", Target: caseRecencyColumn, Type: TypeTimestamp},
			{Source: "Created Date", Target: "created_date", Type: TypeTimestamp},
			{Source: "Status", Target: "case_status", Type: TypeString},
			{Source: "Product", Target: "product", Type: TypeString},
			{Source: "Sub Product", Target: "sub_product", Type: TypeString},
			{Source: "Requester Street", Target: "requester_street", Type: TypeString},
			{Source: "Requester City", Target: "requester_city", Type: TypeString},
			{Source: "Requester State", Target: "requester_state", Type: TypeString},
			{Source: "Requester Zip", Target: "requester_zip", Type: TypeString},
			{Source: "Requester Country", Target: "requester_country", Type: TypeString},
			{Source: "Account Id", Target: "account_id", Type: TypeString},
			{Source: "Contact Id", Target: "contact_id", Type: TypeString},
			{Source: "Case Id", Target: "case_id", Type: TypeBigint},
			{Target: c.ColumnPartitionDate, Type: TypeInt},
			{Target: c.ColumnLoadDate, Type: TypeDate},
		},
		BusinessKey:   caseBusinessKey,
		RecencyColumn: caseRecencyColumn,
	}
}

// NewTableColumns builds a schema from the supplied columns and validates it.
// Derived columns partition_date and load_date are appended if they are missing.
// An empty businessKey or recencyColumn defaults to the built-in case columns.
func NewTableColumns(cols []TableColumn, businessKey string, recencyColumn string) (TableColumns, error) {
	if businessKey == "" {
		businessKey = caseBusinessKey
	}
	if recencyColumn == "" {
		recencyColumn = caseRecencyColumn
	}
	t := TableColumns{BusinessKey: businessKey, RecencyColumn: recencyColumn}
	t.Columns = append(t.Columns, cols...)
	if _, ok := t.Column(c.ColumnPartitionDate); !ok {
		t.Columns = append(t.Columns, TableColumn{Target: c.ColumnPartitionDate, Type: TypeInt})
	}
	if _, ok := t.Column(c.ColumnLoadDate); !ok {
		t.Columns = append(t.Columns, TableColumn{Target: c.ColumnLoadDate, Type: TypeDate})
	}
	return t, t.Validate()
}

// Validate checks that target names are unique SQL identifiers, that each type is supported
// and that the ranking columns exist.
func (t TableColumns) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("no columns declared")
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns { // for each column...
		if !helper.IsValidIdentifier(col.Target) {
			return fmt.Errorf("invalid target column name %q", col.Target)
		}
		k := strings.ToLower(col.Target)
		if _, ok := seen[k]; ok {
			return fmt.Errorf("duplicate target column %q", col.Target)
		}
		seen[k] = struct{}{}
		if _, err := ParseDataType(string(col.Type)); err != nil {
			return fmt.Errorf("column %q: %v", col.Target, err)
		}
	}
	key, ok := t.Column(t.BusinessKey)
	if !ok {
		return fmt.Errorf("business key column %q is not declared", t.BusinessKey)
	}
	if key.Source == "" {
		return fmt.Errorf("business key column %q must be read from the source files", t.BusinessKey)
	}
	rc, ok := t.Column(t.RecencyColumn)
	if !ok {
		return fmt.Errorf("recency column %q is not declared", t.RecencyColumn)
	}
	if rc.Type != TypeTimestamp && rc.Type != TypeDate {
		return fmt.Errorf("recency column %q must be a timestamp or date; got %v", t.RecencyColumn, rc.Type)
	}
	return nil
}

// Column returns the column with the given target name.
func (t TableColumns) Column(target string) (TableColumn, bool) {
	for _, col := range t.Columns {
		if col.Target == target {
			return col, true
		}
	}
	return TableColumn{}, false
}

// BusinessKeyType returns the declared type of the business key, or "" if it is not declared.
func (t TableColumns) BusinessKeyType() DataType {
	col, _ := t.Column(t.BusinessKey)
	return col.Type
}

// TargetNames returns the target column names in declared order.
func (t TableColumns) TargetNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Target)
	}
	return names
}

// RenameMap returns an ordered map of source header to target column name.
// Derived columns are not included.
func (t TableColumns) RenameMap() *ordered_map.OrderedMap {
	m := ordered_map.NewOrderedMap()
	for _, col := range t.Columns {
		if col.Source != "" {
			m.Set(col.Source, col.Target)
		}
	}
	return m
}

// CreateTableDDL returns a CREATE TABLE statement for the schema using the supplied Mapper.
func CreateTableDDL(schemaTable string, t TableColumns, mapper Mapper) (string, error) {
	if schemaTable == "" {
		return "", fmt.Errorf("missing table name to build CREATE TABLE DDL")
	}
	fields := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns { // for each column...
		tgtDataType, err := mapper.Map(col.Type)
		if err != nil {
			return "", err
		}
		notNull := ""
		if col.Target == t.BusinessKey { // if this is the key...
			notNull = " not null"
		}
		fields = append(fields, fmt.Sprintf("%v %v%v", col.Target, tgtDataType, notNull))
	}
	return fmt.Sprintf("CREATE TABLE %v ( %v )", schemaTable, strings.Join(fields, ", ")), nil
}

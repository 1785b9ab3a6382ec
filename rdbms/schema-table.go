package rdbms

import (
	"fmt"
	"strings"

	"github.com/relloyd/casepipe/helper"
)

type SchemaTable struct {
	SchemaTable string `errorTxt:"[<schema>.]<object>" mandatory:"yes"`
}

func NewSchemaTable(schema string, table string) SchemaTable {
	if schema == "" {
		return SchemaTable{table}
	} else {
		return SchemaTable{schema + "." + table}
	}
}

// Validate returns an error unless the schema and table are plain identifiers.
// Only validated names are interpolated into SQL.
func (st *SchemaTable) Validate() error {
	if strings.Count(st.SchemaTable, ".") > 1 {
		return fmt.Errorf("expected [<schema>.]<table> but got %q", st.SchemaTable)
	}
	schema := st.GetSchema()
	if strings.Contains(st.SchemaTable, ".") && schema == "" {
		return fmt.Errorf("missing schema name in %q", st.SchemaTable)
	}
	if schema != "" && !helper.IsValidIdentifier(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	if !helper.IsValidIdentifier(st.GetTable()) {
		return fmt.Errorf("invalid table name %q", st.GetTable())
	}
	return nil
}

func (st *SchemaTable) GetTable() string {
	_, table := helper.SplitRight(st.SchemaTable, ".")
	if table == "" && !strings.Contains(st.SchemaTable, ".") { // if we have just a table...
		return st.SchemaTable
	}
	return table
}

func (st *SchemaTable) GetSchema() string {
	schema, table := helper.SplitRight(st.SchemaTable, ".")
	if table == "" && !strings.Contains(st.SchemaTable, ".") { // if we have just a table...
		return ""
	}
	return schema
}

func (st *SchemaTable) String() string {
	return st.SchemaTable
}

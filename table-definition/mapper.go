package tabledefinition

import (
	"fmt"
	"strings"

	c "github.com/relloyd/casepipe/constants"
)

// DataType is one of the column types a target schema can declare.
type DataType string

const (
	TypeString    DataType = "string"
	TypeInt       DataType = "int"
	TypeBigint    DataType = "bigint"
	TypeDouble    DataType = "double"
	TypeBoolean   DataType = "boolean"
	TypeTimestamp DataType = "timestamp"
	TypeDate      DataType = "date"
)

var supportedDataTypes = []DataType{TypeString, TypeInt, TypeBigint, TypeDouble, TypeBoolean, TypeTimestamp, TypeDate}

// ParseDataType returns the DataType matching s, ignoring case and surrounding space.
func ParseDataType(s string) (DataType, error) {
	t := DataType(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range supportedDataTypes {
		if v == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported data type %q", s)
}

// Mapper converts a DataType into the equivalent column type of a database.
type Mapper interface {
	Map(t DataType) (output string, err error)
}

// dataTypeLink pairs a DataType with the database column type it is stored as.
type dataTypeLink struct {
	SourceDataType DataType
	TargetDataType string
}

// dataTypeMap implements Mapper.
type dataTypeMap struct {
	name     string
	mapTypes map[DataType]string
}

func newDataTypeMapper(name string, types []dataTypeLink) dataTypeMap {
	dtm := dataTypeMap{name: name, mapTypes: make(map[DataType]string)}
	for _, row := range types { // for each data type link...
		dtm.mapTypes[row.SourceDataType] = row.TargetDataType
	}
	return dtm
}

func (o dataTypeMap) Map(t DataType) (string, error) {
	v, ok := o.mapTypes[t]
	if !ok {
		return "", fmt.Errorf("unsupported data type %q for %v", t, o.name)
	}
	return v, nil
}

var SnowflakeDataTypeMapping = []dataTypeLink{
	{SourceDataType: TypeString, TargetDataType: "varchar"},
	{SourceDataType: TypeInt, TargetDataType: "integer"},
	{SourceDataType: TypeBigint, TargetDataType: "bigint"},
	{SourceDataType: TypeDouble, TargetDataType: "double"},
	{SourceDataType: TypeBoolean, TargetDataType: "boolean"},
	{SourceDataType: TypeTimestamp, TargetDataType: "timestamp_ntz"}, // values are always UTC.
	{SourceDataType: TypeDate, TargetDataType: "date"},
}

var SqlServerDataTypeMapping = []dataTypeLink{
	{SourceDataType: TypeString, TargetDataType: "nvarchar(max)"},
	{SourceDataType: TypeInt, TargetDataType: "int"},
	{SourceDataType: TypeBigint, TargetDataType: "bigint"},
	{SourceDataType: TypeDouble, TargetDataType: "float(53)"},
	{SourceDataType: TypeBoolean, TargetDataType: "bit"},
	{SourceDataType: TypeTimestamp, TargetDataType: "datetime2(6)"},
	{SourceDataType: TypeDate, TargetDataType: "date"},
}

var NetezzaDataTypeMapping = []dataTypeLink{
	{SourceDataType: TypeString, TargetDataType: "nvarchar(16000)"},
	{SourceDataType: TypeInt, TargetDataType: "integer"},
	{SourceDataType: TypeBigint, TargetDataType: "bigint"},
	{SourceDataType: TypeDouble, TargetDataType: "double precision"},
	{SourceDataType: TypeBoolean, TargetDataType: "boolean"},
	{SourceDataType: TypeTimestamp, TargetDataType: "timestamp"},
	{SourceDataType: TypeDate, TargetDataType: "date"},
}

var PostgresDataTypeMapping = []dataTypeLink{
	{SourceDataType: TypeString, TargetDataType: "text"},
	{SourceDataType: TypeInt, TargetDataType: "integer"},
	{SourceDataType: TypeBigint, TargetDataType: "bigint"},
	{SourceDataType: TypeDouble, TargetDataType: "double precision"},
	{SourceDataType: TypeBoolean, TargetDataType: "boolean"},
	{SourceDataType: TypeTimestamp, TargetDataType: "timestamp"},
	{SourceDataType: TypeDate, TargetDataType: "date"},
}

// SqliteDataTypeMapping uses declared types that give the right column affinity.
var SqliteDataTypeMapping = []dataTypeLink{
	{SourceDataType: TypeString, TargetDataType: "text"},
	{SourceDataType: TypeInt, TargetDataType: "integer"},
	{SourceDataType: TypeBigint, TargetDataType: "integer"},
	{SourceDataType: TypeDouble, TargetDataType: "real"},
	{SourceDataType: TypeBoolean, TargetDataType: "boolean"},
	{SourceDataType: TypeTimestamp, TargetDataType: "timestamp"},
	{SourceDataType: TypeDate, TargetDataType: "date"},
}

var mappersByConnectionType = map[string][]dataTypeLink{
	c.ConnectionTypeSnowflake: SnowflakeDataTypeMapping,
	c.ConnectionTypeSqlServer: SqlServerDataTypeMapping,
	c.ConnectionTypeNetezza:   NetezzaDataTypeMapping,
	c.ConnectionTypePostgres:  PostgresDataTypeMapping,
	c.ConnectionTypeSqlite:    SqliteDataTypeMapping,
}

// GetMapper returns the Mapper for the given connection type.
func GetMapper(connectionType string) (Mapper, error) {
	links, ok := mappersByConnectionType[strings.ToLower(connectionType)]
	if !ok { // if we do not support the connection type...
		return nil, fmt.Errorf("unable to find data type mapper for RDBMS type %q", connectionType)
	}
	return newDataTypeMapper(connectionType, links), nil
}

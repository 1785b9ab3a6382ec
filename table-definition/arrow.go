package tabledefinition

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// ArrowType returns the arrow type used to store t in Parquet.
func ArrowType(t DataType) arrow.DataType {
	switch t {
	case TypeInt:
		return arrow.PrimitiveTypes.Int32
	case TypeBigint:
		return arrow.PrimitiveTypes.Int64
	case TypeDouble:
		return arrow.PrimitiveTypes.Float64
	case TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case TypeTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	case TypeDate:
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema returns a schema with one nullable field per column in declared order.
func (t TableColumns) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns))
	for _, col := range t.Columns {
		fields = append(fields, arrow.Field{Name: col.Target, Type: ArrowType(col.Type), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

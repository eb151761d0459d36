package federation

// ResultShape tags the row layout of a federated response. The shape is
// resolved once per response from its first sample-bearing entry and applies
// to every series of that response.
type ResultShape int

const (
	// ShapeNone is the zero value, carried only by empty results.
	ShapeNone ResultShape = iota
	// ShapeDefault is the plain (timestamp, value) sample layout.
	ShapeDefault
	// ShapeHistogram is the (timestamp, histogram) sample layout.
	ShapeHistogram
	// ShapeAvgAggregate is the averaged aggregate sample layout.
	ShapeAvgAggregate
	// ShapeStdDevAggregate is the standard-deviation aggregate sample layout.
	ShapeStdDevAggregate
)

func (s ResultShape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeDefault:
		return "default"
	case ShapeHistogram:
		return "histogram"
	case ShapeAvgAggregate:
		return "avg_aggregate"
	case ShapeStdDevAggregate:
		return "stddev_aggregate"
	}
	return "unknown"
}

// ColumnType enumerates the semantic column types of a result layout.
type ColumnType int

const (
	ColumnTimestamp ColumnType = iota
	ColumnDouble
	ColumnLong
	ColumnHistogram
)

// ColumnSpec names one column of a result layout.
type ColumnSpec struct {
	Name string
	Type ColumnType
}

// Layout returns the ordered column layout for the shape; ShapeNone has no
// layout. Layouts are fixed constants. The column order must match what the
// shape's row iterator writes for every row, in the same order, or the
// binary encoding is silently corrupted.
func (s ResultShape) Layout() []ColumnSpec {
	switch s {
	case ShapeDefault:
		return []ColumnSpec{
			{Name: "timestamp", Type: ColumnTimestamp},
			{Name: "value", Type: ColumnDouble},
		}
	case ShapeHistogram:
		return []ColumnSpec{
			{Name: "timestamp", Type: ColumnTimestamp},
			{Name: "histogram", Type: ColumnHistogram},
		}
	case ShapeAvgAggregate:
		return []ColumnSpec{
			{Name: "timestamp", Type: ColumnTimestamp},
			{Name: "value", Type: ColumnDouble},
			{Name: "count", Type: ColumnLong},
		}
	case ShapeStdDevAggregate:
		return []ColumnSpec{
			{Name: "timestamp", Type: ColumnTimestamp},
			{Name: "stddev", Type: ColumnDouble},
			{Name: "mean", Type: ColumnDouble},
			{Name: "count", Type: ColumnLong},
		}
	}
	return nil
}

// ResultSchema describes the serialized form of one response: the shape's
// column layout tagged with its row arity. Non-empty shapes serialize one
// row group per series key. The zero value is the empty-result schema.
type ResultSchema struct {
	Shape    ResultShape
	Columns  []ColumnSpec
	RowArity int
}

// SchemaFor derives the serialization schema for a shape. It is derived once
// per response and shared read-only across all series of that response.
func SchemaFor(shape ResultShape) ResultSchema {
	if shape == ShapeNone {
		return ResultSchema{}
	}
	return ResultSchema{Shape: shape, Columns: shape.Layout(), RowArity: 1}
}

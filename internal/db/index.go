package db

// IndexFieldType enumerates supported FT schema field types.
type IndexFieldType string

// Schema field types.
const (
	IndexFieldTag     IndexFieldType = "TAG"
	IndexFieldNumeric IndexFieldType = "NUMERIC"
	IndexFieldVector  IndexFieldType = "VECTOR"
)

// VectorAlgo is the ANN algorithm for a vector field.
type VectorAlgo string

// Vector algorithms.
const (
	VectorFlat VectorAlgo = "FLAT"
	VectorHNSW VectorAlgo = "HNSW"
)

// VectorDistanceMetric is the distance metric for a vector field.
type VectorDistanceMetric string

// Distance metrics.
const (
	DistanceCosine VectorDistanceMetric = "COSINE"
	DistanceL2     VectorDistanceMetric = "L2"
)

// IndexField describes one schema field of an FT index.
type IndexField struct {
	Name  string
	Alias string
	Type  IndexFieldType

	TagSeparator string

	VectorDim         int
	VectorAlgo        VectorAlgo
	VectorDistance    VectorDistanceMetric
	VectorM           int
	VectorEFConstruct int
}

// IndexDefinition describes an FT index over hash keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

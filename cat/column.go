package cat

type ColumnName string

type Column struct {
	ID      ColumnID
	Name    ColumnName
	NotNull bool

	// DistinctCount is the estimated number of distinct values. Zero means
	// unknown, in which case the histogram is consulted.
	DistinctCount float64

	Stats *Histogram
}

package cat

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
)

// A Histogram stores statistics for a table column, as well as buckets
// representing the distribution of non-NULL integer values.
//
// The statistics are accurate at the time of collection (except for
// DistinctCount, which is an estimate). Within a bucket, values are assumed to
// be uniformly distributed; splitting a bucket divides its NumRange count
// proportionally.
type Histogram struct {
	// The total number of rows in the table.
	RowCount int64

	// The estimated cardinality (distinct values) for the column.
	DistinctCount int64

	// The number of NULL values for the column.
	NullCount int64

	// The histogram buckets which describe the distribution of non-NULL
	// values. The buckets are sorted by UpperBound. The first bucket must
	// have NumRange = 0, so the UpperBound of the bucket indicates the lower
	// bound of the histogram.
	Buckets []Bucket
}

func (h *Histogram) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "rows:       %d\n", h.RowCount)
	fmt.Fprintf(&buf, "distinct:   %d\n", h.DistinctCount)
	fmt.Fprintf(&buf, "nulls:      %d\n", h.NullCount)
	fmt.Fprintf(&buf, "buckets:   ")
	if len(h.Buckets) == 0 {
		fmt.Fprintf(&buf, " none")
	}
	for _, b := range h.Buckets {
		fmt.Fprintf(&buf, " %d:%d,%d", b.UpperBound, b.NumRange, b.NumEq)
	}
	buf.WriteString("\n")
	return buf.String()
}

// lowerBound returns the exclusive lower bound on the histogram, i.e. one
// less than the minimum value in the histogram.
func (h *Histogram) lowerBound() int64 {
	return h.Buckets[0].UpperBound - 1
}

// upperBound returns the inclusive upper bound on the histogram.
func (h *Histogram) upperBound() int64 {
	return h.Buckets[len(h.Buckets)-1].UpperBound
}

// Validate checks that the buckets are ordered and that the first bucket
// only describes the lower bound.
func (h *Histogram) Validate() error {
	return checkBucketsValid(h.Buckets)
}

// FilterLt applies a filter to the histogram that compares the histogram
// column value to a constant with < (or <= if inclusive is set). Returns an
// updated histogram including only the values that satisfy the predicate.
func (h *Histogram) FilterLt(val int64, inclusive bool) *Histogram {
	if len(h.Buckets) == 0 {
		return h
	}

	lowerBound := h.lowerBound()
	var newBuckets []Bucket

	for _, b := range h.Buckets {
		if val <= lowerBound {
			break
		}

		if val <= b.UpperBound {
			var buc Bucket
			if val < b.UpperBound {
				buc, _ = b.splitBucket(val, lowerBound)
			} else {
				buc = b
			}

			if !inclusive {
				buc.NumEq = 0
			}
			newBuckets = append(newBuckets, buc)
			break
		}

		newBuckets = append(newBuckets, b)
		lowerBound = b.UpperBound
	}

	return h.filterHistogram(newBuckets)
}

// FilterGt applies a filter to the histogram that compares the histogram
// column value to a constant with > (or >= if inclusive is set).
func (h *Histogram) FilterGt(val int64, inclusive bool) *Histogram {
	if len(h.Buckets) == 0 {
		return h
	}

	upperBound := h.upperBound()
	var newBuckets []Bucket

	newLowerBound := val
	if inclusive {
		newLowerBound--
	}

	// Iterate backwards through the buckets to avoid scanning buckets
	// that don't satisfy the predicate.
	for i := len(h.Buckets) - 1; i >= 0; i-- {
		b := h.Buckets[i]
		if val >= upperBound {
			if val == upperBound && inclusive {
				buc := b
				buc.NumRange = 0
				newBuckets = append(newBuckets, buc)
			}
			break
		}

		var lowerBound int64
		if i == 0 {
			lowerBound = upperBound - 1
		} else {
			lowerBound = h.Buckets[i-1].UpperBound
		}

		if val > lowerBound {
			_, buc := b.splitBucket(newLowerBound, lowerBound)
			newBuckets = append(newBuckets, buc)
			break
		}

		newBuckets = append(newBuckets, b)
		upperBound = lowerBound
	}

	// Add a dummy bucket for the lower bound if needed.
	if len(newBuckets) > 0 && newBuckets[len(newBuckets)-1].NumRange != 0 {
		newBuckets = append(newBuckets, Bucket{UpperBound: newLowerBound})
	}

	slices.Reverse(newBuckets)
	return h.filterHistogram(newBuckets)
}

// FilterEq applies a filter to the histogram that compares the histogram
// column value to a set of constants (x = 4, or x IN (4, 5, 6)).
func (h *Histogram) FilterEq(vals []int64) *Histogram {
	if len(vals) == 0 {
		return &Histogram{}
	}

	if len(h.Buckets) == 0 {
		return h
	}

	vals = slices.Clone(vals)
	slices.Sort(vals)
	valIdx := 0
	lowerBound := h.lowerBound()
	var newBuckets []Bucket

	for _, b := range h.Buckets {
		if valIdx >= len(vals) {
			break
		}

		for valIdx < len(vals) && vals[valIdx] <= lowerBound {
			valIdx++
		}

		bucketSize := b.UpperBound - lowerBound - 1
		for valIdx < len(vals) && vals[valIdx] < b.UpperBound && bucketSize > 0 {
			// Assuming a uniform distribution.
			numEq := int64(float64(b.NumRange) / float64(bucketSize))
			newBuckets = append(newBuckets, Bucket{NumEq: numEq, UpperBound: vals[valIdx]})
			valIdx++
		}

		for valIdx < len(vals) && vals[valIdx] == b.UpperBound {
			buc := b
			buc.NumRange = 0
			newBuckets = append(newBuckets, buc)
			valIdx++
		}

		lowerBound = b.UpperBound
	}

	return h.filterHistogram(newBuckets)
}

// Selectivity returns the fraction of the rows in h that remain in the
// filtered histogram.
func (h *Histogram) Selectivity(filtered *Histogram) float64 {
	if h.RowCount <= 0 {
		return 1
	}
	sel := float64(filtered.RowCount) / float64(h.RowCount)
	if sel > 1 {
		return 1
	}
	return sel
}

// filterHistogram creates a new histogram given new buckets which represent
// a filtered version of the existing histogram h.
func (h *Histogram) filterHistogram(newBuckets []Bucket) *Histogram {
	total := int64(0)
	for _, b := range newBuckets {
		total += b.NumEq + b.NumRange
	}

	if total == 0 || h.RowCount == 0 {
		return &Histogram{}
	}

	selectivity := float64(total) / float64(h.RowCount)

	// Estimate the new DistinctCount based on the selectivity of this filter.
	distinctCount := int64(float64(h.DistinctCount) * selectivity)
	if distinctCount == 0 {
		// There must be at least one distinct value since RowCount > 0.
		distinctCount++
	}

	return &Histogram{
		RowCount:      total,
		DistinctCount: distinctCount,

		// All the returned rows will be non-null for this column.
		NullCount: 0,
		Buckets:   newBuckets,
	}
}

type Bucket struct {
	// The number of values in the bucket equal to UpperBound.
	NumEq int64

	// The number of values in the bucket, excluding those that are
	// equal to UpperBound.
	NumRange int64

	// The upper boundary of the bucket.
	UpperBound int64
}

// splitBucket splits a bucket into two buckets at the given split point.
// The lower bucket contains the values less than or equal to splitPoint, and
// the upper bucket contains the values greater than splitPoint. The count of
// values in NumRange is split between the two buckets assuming a uniform
// distribution.
//
// lowerBound is an exclusive lower bound on the bucket (it's equal to one
// less than the minimum value).
func (b Bucket) splitBucket(splitPoint, lowerBound int64) (Bucket, Bucket) {
	// The bucket size calculation has a -1 because NumRange does not
	// include values equal to UpperBound.
	bucketSize := b.UpperBound - lowerBound - 1
	if bucketSize <= 0 {
		panic(errors.AssertionFailedf("empty bucket should have been skipped"))
	}

	if splitPoint >= b.UpperBound || splitPoint <= lowerBound {
		panic(errors.AssertionFailedf("splitPoint (%d) must be between UpperBound (%d) and lowerBound (%d)",
			splitPoint, b.UpperBound, lowerBound))
	}

	// Make the lower bucket.
	lowerMatchSize := splitPoint - lowerBound - 1
	lowerNumRange := int64(float64(b.NumRange) * float64(lowerMatchSize) / float64(bucketSize))
	lowerNumEq := int64(float64(b.NumRange) / float64(bucketSize))
	bucLower := Bucket{NumEq: lowerNumEq, NumRange: lowerNumRange, UpperBound: splitPoint}

	// Make the upper bucket.
	upperMatchSize := b.UpperBound - splitPoint - 1
	bucUpper := b
	bucUpper.NumRange = int64(float64(b.NumRange) * float64(upperMatchSize) / float64(bucketSize))

	return bucLower, bucUpper
}

func checkBucketsValid(buckets []Bucket) error {
	if len(buckets) == 0 {
		return nil
	}

	if buckets[0].NumRange != 0 {
		return errors.New("first bucket must have NumRange = 0")
	}

	prev := buckets[0].UpperBound
	for i := 1; i < len(buckets); i++ {
		cur := buckets[i].UpperBound
		if prev >= cur {
			return errors.New("buckets must be disjoint and ordered by UpperBound")
		}
		prev = cur
	}
	return nil
}

package planner

import (
	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/loader/domain"
)

// Plan partitions the record indices [0, totalRecords) into contiguous ranges of batchSize records.
// Only the last range may be shorter. The result is empty when totalRecords is zero.
func Plan(totalRecords int, batchSize int) ([]domain.Range, error) {
	if batchSize < 1 {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{
			Name:    "batchSize",
			Value:   batchSize,
			Message: "must be at least 1",
		})
	}
	if totalRecords < 0 {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{
			Name:    "totalRecords",
			Value:   totalRecords,
			Message: "must not be negative",
		})
	}

	ranges := make([]domain.Range, 0, BatchCount(totalRecords, batchSize))
	for start := 0; start < totalRecords; start += batchSize {
		end := start + batchSize
		if end > totalRecords {
			end = totalRecords
		}
		ranges = append(ranges, domain.Range{Start: start, End: end})
	}
	return ranges, nil
}

// BatchCount is ceil(totalRecords / batchSize), the number of ranges Plan returns.
func BatchCount(totalRecords int, batchSize int) int {
	if batchSize < 1 || totalRecords <= 0 {
		return 0
	}
	return (totalRecords + batchSize - 1) / batchSize
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []OrderStatus{
	StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered,
	StatusCompleted, StatusConfirmed, StatusCancelled, StatusReturned, StatusFailed,
	"on_hold", "refunded", "",
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   Category
	}{
		{StatusPending, CategoryHolding},
		{StatusPaid, CategoryHolding},
		{StatusProcessing, CategoryHolding},
		{StatusShipped, CategoryHolding},
		{StatusDelivered, CategoryHolding},
		{StatusCompleted, CategoryHolding},
		{StatusConfirmed, CategoryHolding},
		{StatusCancelled, CategoryReleasing},
		{StatusReturned, CategoryReleasing},
		{StatusFailed, CategoryReleasing},
		{"on_hold", CategoryNone},
		{"PENDING", CategoryNone},
		{"", CategoryNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.status))
		})
	}
}

func TestComputeStockDelta_AllPairs(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := DeltaNone
			switch {
			case CategoryOf(from) == CategoryReleasing && CategoryOf(to) == CategoryHolding:
				want = DeltaDecrease
			case CategoryOf(from) == CategoryHolding && CategoryOf(to) == CategoryReleasing:
				want = DeltaIncrease
			}
			assert.Equal(t, want, ComputeStockDelta(from, to), "%q -> %q", from, to)
		}
	}
}

func TestComputeStockDelta_Examples(t *testing.T) {
	assert.Equal(t, DeltaIncrease, ComputeStockDelta(StatusPending, StatusCancelled))
	assert.Equal(t, DeltaDecrease, ComputeStockDelta(StatusCancelled, StatusPaid))
	assert.Equal(t, DeltaNone, ComputeStockDelta(StatusPending, StatusShipped))
	assert.Equal(t, DeltaNone, ComputeStockDelta(StatusCancelled, StatusReturned))
	assert.Equal(t, DeltaNone, ComputeStockDelta("on_hold", StatusCancelled))
	assert.Equal(t, DeltaNone, ComputeStockDelta(StatusFailed, "on_hold"))
}

package allocation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
)

var day0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func batch(id string, day int, stock int) domain.Batch {
	return domain.Batch{ID: id, ProductID: "p1", BatchNumber: "L-" + id, Stock: stock, ReceivedAt: day0.AddDate(0, 0, day)}
}

func physical(stock int) domain.Product {
	return domain.Product{ID: "p1", Name: "Leche Entera", Type: domain.ProductTypePhysical, Stock: stock}
}

func TestPlanConsumesOldestBatchFirst(t *testing.T) {
	batches := []domain.Batch{batch("b2", 2, 5), batch("b1", 1, 3)}

	plan, err := Plan(physical(8), batches, 4)

	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "b1", *plan[0].BatchID)
	assert.Equal(t, 3, plan[0].Quantity)
	assert.Equal(t, "b2", *plan[1].BatchID)
	assert.Equal(t, 1, plan[1].Quantity)
	assert.Equal(t, 5, batches[0].Stock, "input batches must not be mutated")
}

func TestPlanExactCoverageEmptiesEveryBatch(t *testing.T) {
	batches := []domain.Batch{batch("b1", 1, 3), batch("b2", 2, 5), batch("b3", 3, 2)}

	plan, err := Plan(physical(10), batches, 10)

	require.NoError(t, err)
	require.Len(t, plan, 3)
	for i, b := range batches {
		assert.Equal(t, b.ID, *plan[i].BatchID)
		assert.Equal(t, b.Stock, plan[i].Quantity)
	}
	assert.Equal(t, 10, FromBatches(plan))
}

func TestPlanFallsBackToAggregateStockWithoutBatches(t *testing.T) {
	plan, err := Plan(physical(10), nil, 6)

	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Nil(t, plan[0].BatchID)
	assert.Equal(t, 6, plan[0].Quantity)
}

func TestPlanRefusesWhenNeitherSourceCovers(t *testing.T) {
	plan, err := Plan(physical(2), []domain.Batch{batch("b1", 1, 2)}, 5)

	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))
	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Leche Entera", stockErr.Product)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)
}

func TestPlanNeverMixesBatchAndAggregateSources(t *testing.T) {
	// Batches hold 3, aggregate holds 7 (3 batched + 4 unbatched): a line of 5
	// is served entirely from aggregate stock.
	plan, err := Plan(physical(7), []domain.Batch{batch("b1", 1, 3)}, 5)

	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Nil(t, plan[0].BatchID)
	assert.Equal(t, 5, plan[0].Quantity)
}

func TestPlanSkipsEmptyBatches(t *testing.T) {
	plan, err := Plan(physical(4), []domain.Batch{batch("b0", 0, 0), batch("b1", 1, 4)}, 2)

	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "b1", *plan[0].BatchID)
}

func TestPlanServiceProductsIgnoreStock(t *testing.T) {
	svc := domain.Product{ID: "s1", Name: "Gift wrap", Type: domain.ProductTypeService}

	plan, err := Plan(svc, nil, 3)

	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Nil(t, plan[0].BatchID)
	assert.Equal(t, 3, plan[0].Quantity)
}

func TestPlanRejectsNonPositiveQuantity(t *testing.T) {
	_, err := Plan(physical(5), nil, 0)
	assert.True(t, errors.Is(err, store.ErrInvalidTransaction))
}

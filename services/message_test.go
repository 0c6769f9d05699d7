package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMarkEventProcessedDuplicateDelivery(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("second delivery of the same id is rejected", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{
				Index:   0,
				Code:    11000,
				Message: "E11000 duplicate key error",
			}),
		)

		fresh, err := MarkEventProcessed(context.Background(), "wamid.DUP")
		require.NoError(mt, err)
		assert.True(mt, fresh)

		// The provider redelivers the exact same webhook event
		fresh, err = MarkEventProcessed(context.Background(), "wamid.DUP")
		require.NoError(mt, err)
		assert.False(mt, fresh)
	})
}

func TestMarkEventProcessedNoCorrelationID(t *testing.T) {
	// Without a provider id there is nothing to dedup on; the message is
	// processed and no claim is written.
	fresh, err := MarkEventProcessed(context.Background(), "")

	require.NoError(t, err)
	assert.True(t, fresh)
}

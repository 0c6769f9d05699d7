package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"whatsapp-bot/models"
)

func TestPickSellerPrefersLowestLoad(t *testing.T) {
	now := time.Now()
	sellers := []models.Seller{
		{SellerID: "a", IsActive: true, CurrentLeadsCount: 2, LastAssignedAt: now.Add(-time.Hour)},
		{SellerID: "b", IsActive: true, CurrentLeadsCount: 0, LastAssignedAt: now},
		{SellerID: "c", IsActive: true, CurrentLeadsCount: 1, LastAssignedAt: now.Add(-2 * time.Hour)},
	}

	picked := PickSeller(sellers)

	require.NotNil(t, picked)
	assert.Equal(t, "b", picked.SellerID)
}

func TestPickSellerBreaksTiesByOldestAssignment(t *testing.T) {
	now := time.Now()
	sellers := []models.Seller{
		{SellerID: "a", IsActive: true, CurrentLeadsCount: 1, LastAssignedAt: now.Add(-time.Minute)},
		{SellerID: "b", IsActive: true, CurrentLeadsCount: 1, LastAssignedAt: now.Add(-time.Hour)},
		{SellerID: "c", IsActive: true, CurrentLeadsCount: 1, LastAssignedAt: now},
	}

	picked := PickSeller(sellers)

	require.NotNil(t, picked)
	assert.Equal(t, "b", picked.SellerID)
}

func TestPickSellerSkipsInactive(t *testing.T) {
	sellers := []models.Seller{
		{SellerID: "a", IsActive: false, CurrentLeadsCount: 0},
		{SellerID: "b", IsActive: true, CurrentLeadsCount: 7},
	}

	picked := PickSeller(sellers)

	require.NotNil(t, picked)
	assert.Equal(t, "b", picked.SellerID)
}

func TestPickSellerNoneActive(t *testing.T) {
	sellers := []models.Seller{
		{SellerID: "a", IsActive: false},
		{SellerID: "b", IsActive: false},
	}

	assert.Nil(t, PickSeller(sellers))
}

func TestPickSellerEmpty(t *testing.T) {
	assert.Nil(t, PickSeller(nil))
}

func TestPickSellerNeverAssignedWinsTie(t *testing.T) {
	sellers := []models.Seller{
		{SellerID: "a", IsActive: true, CurrentLeadsCount: 0, LastAssignedAt: time.Now()},
		{SellerID: "fresh", IsActive: true, CurrentLeadsCount: 0},
	}

	picked := PickSeller(sellers)

	require.NotNil(t, picked)
	assert.Equal(t, "fresh", picked.SellerID)
}

func TestCommitLeadHandoffConditionalOnAIAttendance(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("commits while the lead is AI-attended", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		committed, err := commitLeadHandoff(context.Background(), "t1", "5511999990000", models.AttendedBySeller, "s1")
		require.NoError(mt, err)
		assert.True(mt, committed)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)

		updates, err := evt.Command.Lookup("updates").Array().Values()
		require.NoError(mt, err)
		filter := updates[0].Document().Lookup("q").Document()
		assert.Equal(mt, models.AttendedByAI, filter.Lookup("attended_by").StringValue())
	})

	mt.Run("loses to a concurrent handoff", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		// Another handoff already flipped attended_by; the filter matches
		// nothing and the transition stays monotonic
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		committed, err := commitLeadHandoff(context.Background(), "t1", "5511999990000", models.AttendedByManager, "")
		require.NoError(mt, err)
		assert.False(mt, committed)
	})
}

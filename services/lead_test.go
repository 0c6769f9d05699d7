package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"whatsapp-bot/models"
)

// useMockDatabase points the package at the mtest mock client for the
// duration of one test and restores the previous handle afterwards.
func useMockDatabase(mt *mtest.T) func() {
	prev := database
	database = mt.Client.Database("whatsapp_bot")
	return func() { database = prev }
}

func TestUpdateQualificationFiltersOnLowerTiers(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("hot upgrade may overwrite cold and warm only", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := UpdateQualification(context.Background(), "t1", "5511999990000", models.QualificationHot, 0.9)
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)

		updates, err := evt.Command.Lookup("updates").Array().Values()
		require.NoError(mt, err)
		filter := updates[0].Document().Lookup("q").Document()

		in, err := filter.Lookup("qualification").Document().Lookup("$in").Array().Values()
		require.NoError(mt, err)
		var tiers []string
		for _, v := range in {
			tiers = append(tiers, v.StringValue())
		}
		assert.ElementsMatch(mt, []string{models.QualificationCold, models.QualificationWarm}, tiers)
	})

	mt.Run("warm upgrade cannot touch a hot lead", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		// A lead already at hot matches nothing; the write is a no-op
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := UpdateQualification(context.Background(), "t1", "5511999990000", models.QualificationWarm, 0.6)
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)

		updates, err := evt.Command.Lookup("updates").Array().Values()
		require.NoError(mt, err)
		filter := updates[0].Document().Lookup("q").Document()

		in, err := filter.Lookup("qualification").Document().Lookup("$in").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, in, 1)
		assert.Equal(mt, models.QualificationCold, in[0].StringValue())
	})
}

func TestUpdateQualificationColdIsNoOp(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("cold never issues a write", func(mt *mtest.T) {
		defer useMockDatabase(mt)()

		err := UpdateQualification(context.Background(), "t1", "5511999990000", models.QualificationCold, 0.0)
		require.NoError(mt, err)
		assert.Nil(mt, mt.GetStartedEvent())
	})
}

func TestRecordInsistenceSameTopicIncrements(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("consecutive hit on the same topic", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "tenant_id", Value: "t1"},
			{Key: "phone", Value: "5511999990000"},
			{Key: "insistence_count", Value: 3},
			{Key: "last_blocked_topic", Value: "price"},
		}}))

		count, err := RecordInsistence(context.Background(), "t1", "5511999990000", "price")
		require.NoError(mt, err)
		assert.Equal(mt, 3, count)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "findAndModify", evt.CommandName)

		// The increment is conditional on the stored topic, not computed
		// from a prior read
		query := evt.Command.Lookup("query").Document()
		assert.Equal(mt, "price", query.Lookup("last_blocked_topic").StringValue())
		inc := evt.Command.Lookup("update").Document().Lookup("$inc").Document()
		assert.EqualValues(mt, 1, inc.Lookup("insistence_count").AsInt64())
	})
}

func TestRecordInsistenceTopicChangeRestartsCounter(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("new topic resets to one", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		mt.AddMockResponses(
			// Same-topic increment misses
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			// Restart matches while the stored topic still differs
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
				{Key: "tenant_id", Value: "t1"},
				{Key: "phone", Value: "5511999990000"},
				{Key: "insistence_count", Value: 1},
				{Key: "last_blocked_topic", Value: "price"},
			}}),
		)

		count, err := RecordInsistence(context.Background(), "t1", "5511999990000", "price")
		require.NoError(mt, err)
		assert.Equal(mt, 1, count)

		events := mt.GetAllStartedEvents()
		require.Len(mt, events, 2)

		restart := events[1].Command
		query := restart.Lookup("query").Document()
		ne := query.Lookup("last_blocked_topic").Document()
		assert.Equal(mt, "price", ne.Lookup("$ne").StringValue())

		set := restart.Lookup("update").Document().Lookup("$set").Document()
		assert.EqualValues(mt, 1, set.Lookup("insistence_count").AsInt64())
		assert.Equal(mt, "price", set.Lookup("last_blocked_topic").StringValue())
	})
}

func TestRecordInsistenceMissingLead(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("both conditional updates miss twice", func(mt *mtest.T) {
		defer useMockDatabase(mt)()
		miss := mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
		mt.AddMockResponses(miss, miss, miss, miss)

		_, err := RecordInsistence(context.Background(), "t1", "5511999990000", "price")
		assert.Error(mt, err)
	})
}

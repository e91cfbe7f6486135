// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/authflows/authflows/internal/account"
	"github.com/authflows/authflows/pkg/errutil"
)

var (
	testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testID   = ulid.MustParse("01J9ZQ7W7YF5N3R6ZQ3Z1XK8QH")
)

func testAccount() account.Account {
	return account.Account{
		ID:                     testID,
		Email:                  "a@x.com",
		EncodedPassword:        "enc",
		Enabled:                true,
		LoginAttemptsCounter:   2,
		PasswordLastChangeDate: testTime,
		CreatedAt:              testTime,
		UpdatedAt:              testTime,
	}
}

func accountDoc(attempts int) bson.D {
	return bson.D{
		{Key: "_id", Value: testID.String()},
		{Key: "email", Value: "a@x.com"},
		{Key: "encoded_password", Value: "enc"},
		{Key: "enabled", Value: true},
		{Key: "login_attempts_counter", Value: attempts},
		{Key: "password_last_change_date", Value: testTime},
		{Key: "created_at", Value: testTime},
		{Key: "updated_at", Value: testTime},
	}
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, NewStore(mt.Coll).Insert(ctx, testAccount()))
	})

	mt.Run("insert duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		err := NewStore(mt.Coll).Insert(ctx, testAccount())
		require.ErrorIs(mt, err, account.ErrAlreadyExists)
	})

	mt.Run("find", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(1, namespace(mt), mtest.FirstBatch, accountDoc(2)))

		acc, err := NewStore(mt.Coll).Find(ctx, "a@x.com")
		require.NoError(mt, err)
		assert.Equal(mt, testID, acc.ID)
		assert.Equal(mt, 2, acc.LoginAttemptsCounter)
		assert.True(mt, acc.Enabled)
		assert.True(mt, testTime.Equal(acc.PasswordLastChangeDate))
	})

	mt.Run("find missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := NewStore(mt.Coll).Find(ctx, "nobody@x.com")
		require.ErrorIs(mt, err, account.ErrNotFound)
	})

	mt.Run("find corrupt id", func(mt *mtest.T) {
		doc := accountDoc(0)
		doc[0].Value = "not-a-ulid"
		mt.AddMockResponses(mtest.CreateCursorResponse(1, namespace(mt), mtest.FirstBatch, doc))

		_, err := NewStore(mt.Coll).Find(ctx, "a@x.com")
		errutil.AssertErrorCode(mt.T, err, "ACCOUNT_CORRUPT_ID")
	})

	mt.Run("update", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(mt, NewStore(mt.Coll).Update(ctx, testAccount(), testAccount()))
	})

	mt.Run("update filters on prev", func(mt *mtest.T) {
		prev := testAccount()
		next := prev
		next.EncodedPassword = "enc-new"
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(mt, NewStore(mt.Coll).Update(ctx, prev, next))

		var filter bson.Raw
		for _, ev := range mt.GetAllStartedEvents() {
			if ev.CommandName == "update" {
				filter = ev.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q").Document()
			}
		}
		require.NotNil(mt, filter, "update command not observed")
		assert.Equal(mt, "a@x.com", filter.Lookup("email").StringValue())
		assert.Equal(mt, "enc", filter.Lookup("encoded_password").StringValue())
		assert.Equal(mt, int64(2), filter.Lookup("login_attempts_counter").AsInt64())
		assert.True(mt, filter.Lookup("enabled").Boolean())
	})

	mt.Run("update stale", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(1, namespace(mt), mtest.FirstBatch, bson.D{{Key: "_id", Value: testID.String()}}),
		)
		err := NewStore(mt.Coll).Update(ctx, testAccount(), testAccount())
		require.ErrorIs(mt, err, account.ErrConflict)
	})

	mt.Run("update missing", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch),
		)
		err := NewStore(mt.Coll).Update(ctx, testAccount(), testAccount())
		require.ErrorIs(mt, err, account.ErrNotFound)
	})

	mt.Run("delete", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, NewStore(mt.Coll).Delete(ctx, "a@x.com"))
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		err := NewStore(mt.Coll).Delete(ctx, "a@x.com")
		require.ErrorIs(mt, err, account.ErrNotFound)
	})

	mt.Run("increment attempts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: accountDoc(3)}))

		acc, err := NewStore(mt.Coll).IncrementAttempts(ctx, "a@x.com", testTime)
		require.NoError(mt, err)
		assert.Equal(mt, 3, acc.LoginAttemptsCounter)
	})

	mt.Run("increment attempts missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := NewStore(mt.Coll).IncrementAttempts(ctx, "nobody@x.com", testTime)
		require.ErrorIs(mt, err, account.ErrNotFound)
	})

	mt.Run("server error keeps context", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad value",
		}))

		_, err := NewStore(mt.Coll).Find(ctx, "a@x.com")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, account.ErrNotFound)
		errutil.AssertErrorContext(mt.T, err, "operation", "find account")
	})
}

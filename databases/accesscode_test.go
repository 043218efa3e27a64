package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/databases/mocks"
	"github.com/linesmerrill/benefits-access-api/models"
)

func TestAccessCodeDatabase_InsertOne(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
	collectionHelper.On("InsertOne", context.Background(), mock.MatchedBy(func(c models.AccessCode) bool {
		return c.ID == "taken"
	})).Return(nil, dup)
	collectionHelper.On("InsertOne", context.Background(), mock.MatchedBy(func(c models.AccessCode) bool {
		return c.ID == "fresh"
	})).Return(&mocks.InsertOneResultHelper{}, nil)
	dbHelper.On("Collection", "accessCodes").Return(collectionHelper)

	codes := databases.NewAccessCodeDatabase(dbHelper)

	err := codes.InsertOne(context.Background(), models.AccessCode{ID: "taken", Code: "ABCD-2345"})
	assert.ErrorIs(t, err, databases.ErrDuplicate)

	err = codes.InsertOne(context.Background(), models.AccessCode{ID: "fresh", Code: "ABCD-2346"})
	assert.NoError(t, err)
}

func TestAccessCodeDatabase_FindByCode_FallsBackToLapsed(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srNoLive := &mocks.SingleResultHelper{}
	srLapsed := &mocks.SingleResultHelper{}

	srNoLive.On("Decode", mock.Anything).Return(mongo.ErrNoDocuments)
	srLapsed.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.AccessCode)
		arg.ID = "old"
		arg.Status = models.CodeStatusExpired
	})

	collectionHelper.On("FindOne", context.Background(), bson.M{"activeCode": "ABCD-2345"}).Return(srNoLive)
	collectionHelper.On("FindOne", context.Background(), bson.M{"code": "ABCD-2345"}, mock.Anything).Return(srLapsed)
	dbHelper.On("Collection", "accessCodes").Return(collectionHelper)

	code, err := databases.NewAccessCodeDatabase(dbHelper).FindByCode(context.Background(), "ABCD-2345")
	assert.NoError(t, err)
	assert.Equal(t, "old", code.ID)
	assert.Equal(t, models.CodeStatusExpired, code.Status)
}

func TestAccessCodeDatabase_Transition(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srLost := &mocks.SingleResultHelper{}
	srWon := &mocks.SingleResultHelper{}

	srLost.On("Decode", mock.Anything).Return(mongo.ErrNoDocuments)
	srWon.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.AccessCode)
		arg.ID = "won"
		arg.Status = models.CodeStatusUsed
		arg.AcceptedBy = "person-1"
	})

	collectionHelper.On("FindOneAndUpdate", context.Background(),
		bson.M{"_id": "lost", "status": models.CodeStatusPending}, mock.Anything, mock.Anything).Return(srLost)
	collectionHelper.On("FindOneAndUpdate", context.Background(),
		bson.M{"_id": "won", "status": models.CodeStatusPending},
		bson.M{"$set": bson.M{"status": models.CodeStatusUsed, "acceptedAt": now, "acceptedBy": "person-1"}},
		mock.Anything).Return(srWon)
	dbHelper.On("Collection", "accessCodes").Return(collectionHelper)

	codes := databases.NewAccessCodeDatabase(dbHelper)
	transition := models.CodeTransition{At: now, Actor: "person-1"}

	code, err := codes.Transition(context.Background(), "lost", models.CodeStatusPending, models.CodeStatusUsed, transition)
	assert.Nil(t, code)
	assert.ErrorIs(t, err, databases.ErrConditionFailed)

	code, err = codes.Transition(context.Background(), "won", models.CodeStatusPending, models.CodeStatusUsed, transition)
	assert.NoError(t, err)
	assert.Equal(t, "person-1", code.AcceptedBy)
}

func TestAccessCodeDatabase_ExpirePending(t *testing.T) {
	now := time.Now().UTC()

	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	collectionHelper.On("UpdateMany", context.Background(), bson.M{
		"status":    models.CodeStatusPending,
		"expiresAt": bson.M{"$lte": now},
	}, mock.Anything).Return(&mongo.UpdateResult{MatchedCount: 3, ModifiedCount: 3}, nil).Once()
	collectionHelper.On("UpdateMany", context.Background(), mock.Anything, mock.Anything).
		Return(nil, errors.New("mocked-error")).Once()
	dbHelper.On("Collection", "accessCodes").Return(collectionHelper)

	codes := databases.NewAccessCodeDatabase(dbHelper)

	n, err := codes.ExpirePending(context.Background(), now)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = codes.ExpirePending(context.Background(), now)
	assert.EqualError(t, err, "mocked-error")
	assert.Zero(t, n)
}

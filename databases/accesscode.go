package databases

// go generate: mockery --name AccessCodeDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/benefits-access-api/models"
)

const accessCodeName = "accessCodes"

// AccessCodeDatabase contains the methods to use with the accessCode database
type AccessCodeDatabase interface {
	InsertOne(ctx context.Context, code models.AccessCode) error
	FindByID(ctx context.Context, id string) (*models.AccessCode, error)
	FindByCode(ctx context.Context, code string) (*models.AccessCode, error)
	ListByCompany(ctx context.Context, companyID string, status models.CodeStatus, limit, page int) ([]models.AccessCode, error)
	Transition(ctx context.Context, id string, from, to models.CodeStatus, t models.CodeTransition) (*models.AccessCode, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type accessCodeDatabase struct {
	db DatabaseHelper
}

// NewAccessCodeDatabase initializes a new instance of accessCode database with the provided db connection
func NewAccessCodeDatabase(db DatabaseHelper) AccessCodeDatabase {
	return &accessCodeDatabase{
		db: db,
	}
}

// InsertOne stores a new code. ErrDuplicate means a live code with the same text already exists.
func (c *accessCodeDatabase) InsertOne(ctx context.Context, code models.AccessCode) error {
	_, err := c.db.Collection(accessCodeName).InsertOne(ctx, code)
	return translate(err)
}

func (c *accessCodeDatabase) FindByID(ctx context.Context, id string) (*models.AccessCode, error) {
	code := &models.AccessCode{}
	err := c.db.Collection(accessCodeName).FindOne(ctx, bson.M{"_id": id}).Decode(code)
	if err != nil {
		return nil, translate(err)
	}
	return code, nil
}

// FindByCode returns the live (pending or used) code with the given text. When there is none it
// falls back to the most recently created code with that text so lapsed codes can still be reported.
func (c *accessCodeDatabase) FindByCode(ctx context.Context, text string) (*models.AccessCode, error) {
	code := &models.AccessCode{}
	err := c.db.Collection(accessCodeName).FindOne(ctx, bson.M{"activeCode": text}).Decode(code)
	if errors.Is(err, mongo.ErrNoDocuments) {
		opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
		code = &models.AccessCode{}
		err = c.db.Collection(accessCodeName).FindOne(ctx, bson.M{"code": text}, opts).Decode(code)
	}
	if err != nil {
		return nil, translate(err)
	}
	return code, nil
}

func (c *accessCodeDatabase) ListByCompany(ctx context.Context, companyID string, status models.CodeStatus, limit, page int) ([]models.AccessCode, error) {
	filter := bson.M{"companyId": companyID}
	if status != "" {
		filter["status"] = status
	}
	opts := newMongoPaginate(limit, page).getPaginatedOpts().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var codes []models.AccessCode
	cur, err := c.db.Collection(accessCodeName).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	err = cur.Decode(&codes)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// Transition moves the code from one status to another in a single compare-and-swap on status.
// ErrConditionFailed means the code was not in the from status (or does not exist).
func (c *accessCodeDatabase) Transition(ctx context.Context, id string, from, to models.CodeStatus, t models.CodeTransition) (*models.AccessCode, error) {
	set := bson.M{"status": to}
	update := bson.M{"$set": set}
	switch to {
	case models.CodeStatusUsed:
		set["acceptedAt"] = t.At
		set["acceptedBy"] = t.Actor
	case models.CodeStatusExpired:
		set["expiredAt"] = t.At
		update["$unset"] = bson.M{"activeCode": ""}
	case models.CodeStatusRevoked:
		set["revokedAt"] = t.At
		set["revokedBy"] = t.Actor
		update["$unset"] = bson.M{"activeCode": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	code := &models.AccessCode{}
	err := c.db.Collection(accessCodeName).FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, update, opts).Decode(code)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

// ExpirePending moves every pending code whose expiry has passed to expired
func (c *accessCodeDatabase) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{
		"status":    models.CodeStatusPending,
		"expiresAt": bson.M{"$lte": now},
	}
	update := bson.M{
		"$set":   bson.M{"status": models.CodeStatusExpired, "expiredAt": now},
		"$unset": bson.M{"activeCode": ""},
	}
	res, err := c.db.Collection(accessCodeName).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

package databases

// go generate: mockery --name CompanyDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/benefits-access-api/models"
)

const companyName = "companies"

// CompanyDatabase contains the methods to use with the company database. Every counter mutation is a
// single conditional update, so the seat invariant is checked and written in one round trip.
type CompanyDatabase interface {
	InsertOne(ctx context.Context, company models.Company) error
	FindByID(ctx context.Context, id string) (*models.Company, error)
	ListActive(ctx context.Context) ([]models.Company, error)
	IncrementUsed(ctx context.Context, id string) error
	DecrementUsed(ctx context.Context, id string) error
	AssignSeats(ctx context.Context, id string, seats int) error
	UnassignSeats(ctx context.Context, id string, seats int) error
	SetAllocation(ctx context.Context, id string, allocated int, override bool) (*models.Company, error)
	AddAllocation(ctx context.Context, id string, sessions int) (*models.Company, error)
}

type companyDatabase struct {
	db DatabaseHelper
}

// NewCompanyDatabase initializes a new instance of company database with the provided db connection
func NewCompanyDatabase(db DatabaseHelper) CompanyDatabase {
	return &companyDatabase{
		db: db,
	}
}

func (c *companyDatabase) InsertOne(ctx context.Context, company models.Company) error {
	_, err := c.db.Collection(companyName).InsertOne(ctx, company)
	return translate(err)
}

func (c *companyDatabase) FindByID(ctx context.Context, id string) (*models.Company, error) {
	company := &models.Company{}
	err := c.db.Collection(companyName).FindOne(ctx, bson.M{"_id": id}).Decode(company)
	if err != nil {
		return nil, translate(err)
	}
	return company, nil
}

func (c *companyDatabase) ListActive(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	cur, err := c.db.Collection(companyName).Find(ctx, bson.M{"isActive": true})
	if err != nil {
		return nil, err
	}
	err = cur.Decode(&companies)
	if err != nil {
		return nil, err
	}
	return companies, nil
}

// IncrementUsed adds one used session if the company is active and has a free seat.
// ErrConditionFailed means the quota is exhausted, the company is inactive or it does not exist.
func (c *companyDatabase) IncrementUsed(ctx context.Context, id string) error {
	filter := bson.M{
		"_id":      id,
		"isActive": true,
		"$expr":    bson.M{"$lt": bson.A{"$sessionsUsed", "$sessionsAllocated"}},
	}
	update := bson.M{
		"$inc": bson.M{"sessionsUsed": 1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	return c.updateOneMatched(ctx, filter, update)
}

// DecrementUsed removes one used session, never going below zero
func (c *companyDatabase) DecrementUsed(ctx context.Context, id string) error {
	filter := bson.M{
		"_id":          id,
		"sessionsUsed": bson.M{"$gt": 0},
	}
	update := bson.M{
		"$inc": bson.M{"sessionsUsed": -1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	return c.updateOneMatched(ctx, filter, update)
}

// AssignSeats reserves seats from the allocation for an employee's sub-allocation
func (c *companyDatabase) AssignSeats(ctx context.Context, id string, seats int) error {
	filter := bson.M{
		"_id":      id,
		"isActive": true,
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$sessionsAssigned", seats}},
			"$sessionsAllocated",
		}},
	}
	update := bson.M{
		"$inc": bson.M{"sessionsAssigned": seats},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	return c.updateOneMatched(ctx, filter, update)
}

// UnassignSeats hands seats back to the allocation, never going below zero
func (c *companyDatabase) UnassignSeats(ctx context.Context, id string, seats int) error {
	filter := bson.M{
		"_id":              id,
		"sessionsAssigned": bson.M{"$gte": seats},
	}
	update := bson.M{
		"$inc": bson.M{"sessionsAssigned": -seats},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	return c.updateOneMatched(ctx, filter, update)
}

// SetAllocation resizes the allocation. Without override the update only applies when the new size
// still covers the used and assigned counters; with override those counters are clamped to it.
func (c *companyDatabase) SetAllocation(ctx context.Context, id string, allocated int, override bool) (*models.Company, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": id}
	var update interface{}
	if override {
		update = mongo.Pipeline{{{Key: "$set", Value: bson.D{
			{Key: "sessionsAllocated", Value: allocated},
			{Key: "sessionsUsed", Value: bson.M{"$min": bson.A{"$sessionsUsed", allocated}}},
			{Key: "sessionsAssigned", Value: bson.M{"$min": bson.A{"$sessionsAssigned", allocated}}},
			{Key: "updatedAt", Value: now},
		}}}}
	} else {
		filter["sessionsUsed"] = bson.M{"$lte": allocated}
		filter["sessionsAssigned"] = bson.M{"$lte": allocated}
		update = bson.M{"$set": bson.M{"sessionsAllocated": allocated, "updatedAt": now}}
	}
	return c.findOneAndUpdate(ctx, filter, update)
}

// AddAllocation grows the allocation by sessions
func (c *companyDatabase) AddAllocation(ctx context.Context, id string, sessions int) (*models.Company, error) {
	update := bson.M{
		"$inc": bson.M{"sessionsAllocated": sessions},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	return c.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
}

func (c *companyDatabase) findOneAndUpdate(ctx context.Context, filter, update interface{}) (*models.Company, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	company := &models.Company{}
	err := c.db.Collection(companyName).FindOneAndUpdate(ctx, filter, update, opts).Decode(company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, err
	}
	return company, nil
}

func (c *companyDatabase) updateOneMatched(ctx context.Context, filter, update interface{}) error {
	res, err := c.db.Collection(companyName).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConditionFailed
	}
	return nil
}

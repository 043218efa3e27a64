package databases

// go generate: mockery --name SessionConsumptionDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/benefits-access-api/models"
)

const sessionConsumptionName = "sessionConsumptions"

// SessionConsumptionDatabase tracks which booked sessions are currently counted by the seat ledger
type SessionConsumptionDatabase interface {
	FindByID(ctx context.Context, id string) (*models.SessionConsumption, error)
	Consume(ctx context.Context, consumption models.SessionConsumption) (bool, error)
	Release(ctx context.Context, id, companyID, employeeID string, at time.Time) (bool, error)
}

type sessionConsumptionDatabase struct {
	db DatabaseHelper
}

// NewSessionConsumptionDatabase initializes a new instance of sessionConsumption database with the provided db connection
func NewSessionConsumptionDatabase(db DatabaseHelper) SessionConsumptionDatabase {
	return &sessionConsumptionDatabase{
		db: db,
	}
}

func (s *sessionConsumptionDatabase) FindByID(ctx context.Context, id string) (*models.SessionConsumption, error) {
	consumption := &models.SessionConsumption{}
	err := s.db.Collection(sessionConsumptionName).FindOne(ctx, bson.M{"_id": id}).Decode(consumption)
	if err != nil {
		return nil, translate(err)
	}
	return consumption, nil
}

// Consume marks the session as counted. It returns false when the session is already counted, in
// which case the caller must not touch the counters again. ErrDuplicate means the session id is
// taken by another employee or a concurrent booking of the same session won the insert.
func (s *sessionConsumptionDatabase) Consume(ctx context.Context, consumption models.SessionConsumption) (bool, error) {
	existing, err := s.FindByID(ctx, consumption.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		consumption.State = models.ConsumptionConsumed
		_, err := s.db.Collection(sessionConsumptionName).InsertOne(ctx, consumption)
		if err != nil {
			return false, translate(err)
		}
		return true, nil
	case err != nil:
		return false, err
	}

	if existing.CompanyID != consumption.CompanyID || existing.EmployeeID != consumption.EmployeeID {
		return false, ErrDuplicate
	}
	if existing.State == models.ConsumptionConsumed {
		return false, nil
	}

	filter := bson.M{"_id": consumption.ID, "state": models.ConsumptionReleased}
	update := bson.M{
		"$set":   bson.M{"state": models.ConsumptionConsumed, "consumedAt": consumption.ConsumedAt},
		"$unset": bson.M{"releasedAt": ""},
	}
	res, err := s.db.Collection(sessionConsumptionName).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// Release marks a counted session as no longer counted. It returns false when there was nothing to
// release: the session was never consumed or has already been released.
func (s *sessionConsumptionDatabase) Release(ctx context.Context, id, companyID, employeeID string, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":        id,
		"companyId":  companyID,
		"employeeId": employeeID,
		"state":      models.ConsumptionConsumed,
	}
	update := bson.M{"$set": bson.M{"state": models.ConsumptionReleased, "releasedAt": at}}
	consumption := &models.SessionConsumption{}
	err := s.db.Collection(sessionConsumptionName).FindOneAndUpdate(ctx, filter, update).Decode(consumption)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

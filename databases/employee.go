package databases

// go generate: mockery --name EmployeeDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/benefits-access-api/models"
)

const employeeName = "employees"

// EmployeeDatabase contains the methods to use with the employee database
type EmployeeDatabase interface {
	FindByID(ctx context.Context, id string) (*models.Employee, error)
	ListByCompany(ctx context.Context, companyID string, limit, page int) ([]models.Employee, error)
	Activate(ctx context.Context, employee models.Employee) (*models.Employee, error)
	Deactivate(ctx context.Context, companyID, employeeID string, at time.Time) (*models.Employee, error)
	IncrementUsed(ctx context.Context, companyID, employeeID string) error
	DecrementUsed(ctx context.Context, companyID, employeeID string) error
	SetAllocation(ctx context.Context, companyID, employeeID string, allocated int, override bool) (*models.Employee, error)
	SumUsed(ctx context.Context, companyID string) (int, error)
}

type employeeDatabase struct {
	db DatabaseHelper
}

// NewEmployeeDatabase initializes a new instance of employee database with the provided db connection
func NewEmployeeDatabase(db DatabaseHelper) EmployeeDatabase {
	return &employeeDatabase{
		db: db,
	}
}

func (e *employeeDatabase) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	employee := &models.Employee{}
	err := e.db.Collection(employeeName).FindOne(ctx, bson.M{"_id": id}).Decode(employee)
	if err != nil {
		return nil, translate(err)
	}
	return employee, nil
}

func (e *employeeDatabase) ListByCompany(ctx context.Context, companyID string, limit, page int) ([]models.Employee, error) {
	opts := newMongoPaginate(limit, page).getPaginatedOpts().SetSort(bson.D{{Key: "joinedAt", Value: -1}})

	var employees []models.Employee
	cur, err := e.db.Collection(employeeName).Find(ctx, bson.M{"companyId": companyID}, opts)
	if err != nil {
		return nil, err
	}
	err = cur.Decode(&employees)
	if err != nil {
		return nil, err
	}
	return employees, nil
}

// Activate creates the membership for (CompanyID, PersonID) or reactivates the existing one.
// employee.SessionsAllocated is added to whatever the membership already had.
func (e *employeeDatabase) Activate(ctx context.Context, employee models.Employee) (*models.Employee, error) {
	filter := bson.M{"companyId": employee.CompanyID, "personId": employee.PersonID}
	set := bson.M{
		"isActive":     true,
		"role":         employee.Role,
		"accessCodeId": employee.AccessCodeID,
	}
	if employee.Email != "" {
		set["email"] = employee.Email
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":          employee.ID,
			"joinedAt":     employee.JoinedAt,
			"sessionsUsed": 0,
		},
		"$set":   set,
		"$unset": bson.M{"deactivatedAt": ""},
		"$inc":   bson.M{"sessionsAllocated": employee.SessionsAllocated},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	activated := &models.Employee{}
	err := e.db.Collection(employeeName).FindOneAndUpdate(ctx, filter, update, opts).Decode(activated)
	if err != nil {
		return nil, translate(err)
	}
	return activated, nil
}

func (e *employeeDatabase) Deactivate(ctx context.Context, companyID, employeeID string, at time.Time) (*models.Employee, error) {
	filter := bson.M{"_id": employeeID, "companyId": companyID, "isActive": true}
	update := bson.M{"$set": bson.M{"isActive": false, "deactivatedAt": at}}
	return e.findOneAndUpdate(ctx, filter, update)
}

// IncrementUsed adds one used session to an active employee. The employee's own limit only applies
// when it has a sub-allocation.
func (e *employeeDatabase) IncrementUsed(ctx context.Context, companyID, employeeID string) error {
	filter := bson.M{
		"_id":       employeeID,
		"companyId": companyID,
		"isActive":  true,
		"$or": bson.A{
			bson.M{"sessionsAllocated": bson.M{"$lte": 0}},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$sessionsUsed", "$sessionsAllocated"}}},
		},
	}
	return e.updateOneMatched(ctx, filter, bson.M{"$inc": bson.M{"sessionsUsed": 1}})
}

// DecrementUsed removes one used session, never going below zero
func (e *employeeDatabase) DecrementUsed(ctx context.Context, companyID, employeeID string) error {
	filter := bson.M{
		"_id":          employeeID,
		"companyId":    companyID,
		"sessionsUsed": bson.M{"$gt": 0},
	}
	return e.updateOneMatched(ctx, filter, bson.M{"$inc": bson.M{"sessionsUsed": -1}})
}

// SetAllocation resizes the employee's sub-allocation, following the same override rule as companies
func (e *employeeDatabase) SetAllocation(ctx context.Context, companyID, employeeID string, allocated int, override bool) (*models.Employee, error) {
	filter := bson.M{"_id": employeeID, "companyId": companyID}
	var update interface{}
	if override {
		update = mongo.Pipeline{{{Key: "$set", Value: bson.D{
			{Key: "sessionsAllocated", Value: allocated},
			{Key: "sessionsUsed", Value: bson.M{"$min": bson.A{"$sessionsUsed", allocated}}},
		}}}}
	} else {
		filter["sessionsUsed"] = bson.M{"$lte": allocated}
		update = bson.M{"$set": bson.M{"sessionsAllocated": allocated}}
	}
	return e.findOneAndUpdate(ctx, filter, update)
}

// SumUsed returns the total sessions used by every employee of the company, active or not
func (e *employeeDatabase) SumUsed(ctx context.Context, companyID string) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"companyId": companyID}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$sessionsUsed"}}}},
	}
	cur, err := e.db.Collection(employeeName).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	var totals []struct {
		Total int `bson:"total"`
	}
	if err := cur.Decode(&totals); err != nil {
		return 0, err
	}
	if len(totals) == 0 {
		return 0, nil
	}
	return totals[0].Total, nil
}

func (e *employeeDatabase) findOneAndUpdate(ctx context.Context, filter, update interface{}) (*models.Employee, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	employee := &models.Employee{}
	err := e.db.Collection(employeeName).FindOneAndUpdate(ctx, filter, update, opts).Decode(employee)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, err
	}
	return employee, nil
}

func (e *employeeDatabase) updateOneMatched(ctx context.Context, filter, update interface{}) error {
	res, err := e.db.Collection(employeeName).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConditionFailed
	}
	return nil
}

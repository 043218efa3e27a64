package databases

// go generate: mockery --name TopUpDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/linesmerrill/benefits-access-api/models"
)

const topUpName = "allocationTopUps"

// TopUpDatabase records processed payment events
type TopUpDatabase interface {
	InsertOne(ctx context.Context, topUp models.AllocationTopUp) error
	FindByID(ctx context.Context, id string) (*models.AllocationTopUp, error)
}

type topUpDatabase struct {
	db DatabaseHelper
}

// NewTopUpDatabase initializes a new instance of topUp database with the provided db connection
func NewTopUpDatabase(db DatabaseHelper) TopUpDatabase {
	return &topUpDatabase{
		db: db,
	}
}

// InsertOne stores the top-up. ErrDuplicate means the event was already processed.
func (t *topUpDatabase) InsertOne(ctx context.Context, topUp models.AllocationTopUp) error {
	_, err := t.db.Collection(topUpName).InsertOne(ctx, topUp)
	return translate(err)
}

func (t *topUpDatabase) FindByID(ctx context.Context, id string) (*models.AllocationTopUp, error) {
	topUp := &models.AllocationTopUp{}
	err := t.db.Collection(topUpName).FindOne(ctx, bson.M{"_id": id}).Decode(topUp)
	if err != nil {
		return nil, translate(err)
	}
	return topUp, nil
}

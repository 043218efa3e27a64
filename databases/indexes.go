package databases

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the stores rely on for uniqueness and lookups. It is safe to
// call on every start.
func EnsureIndexes(ctx context.Context, db DatabaseHelper) error {
	indexes := map[string][]mongo.IndexModel{
		accessCodeName: {
			{
				Keys:    bson.D{{Key: "activeCode", Value: 1}},
				Options: options.Index().SetName("activeCode_unique").SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "code", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "companyId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
		},
		employeeName: {
			{
				Keys:    bson.D{{Key: "companyId", Value: 1}, {Key: "personId", Value: 1}},
				Options: options.Index().SetName("company_person_unique").SetUnique(true),
			},
		},
		sessionConsumptionName: {
			{Keys: bson.D{{Key: "companyId", Value: 1}, {Key: "state", Value: 1}}},
		},
		issuerName: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).CreateIndexes(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

package databases

// go generate: mockery --name IssuerDatabase

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/linesmerrill/benefits-access-api/models"
)

const issuerName = "issuers"

// IssuerDatabase contains the methods to use with the issuer database
type IssuerDatabase interface {
	InsertOne(ctx context.Context, issuer models.Issuer) error
	FindByEmail(ctx context.Context, email string) (*models.Issuer, error)
}

type issuerDatabase struct {
	db DatabaseHelper
}

// NewIssuerDatabase initializes a new instance of issuer database with the provided db connection
func NewIssuerDatabase(db DatabaseHelper) IssuerDatabase {
	return &issuerDatabase{
		db: db,
	}
}

func (i *issuerDatabase) InsertOne(ctx context.Context, issuer models.Issuer) error {
	issuer.Email = strings.ToLower(strings.TrimSpace(issuer.Email))
	_, err := i.db.Collection(issuerName).InsertOne(ctx, issuer)
	return translate(err)
}

// FindByEmail only returns active issuers
func (i *issuerDatabase) FindByEmail(ctx context.Context, email string) (*models.Issuer, error) {
	issuer := &models.Issuer{}
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email)), "active": true}
	err := i.db.Collection(issuerName).FindOne(ctx, filter).Decode(issuer)
	if err != nil {
		return nil, translate(err)
	}
	return issuer, nil
}

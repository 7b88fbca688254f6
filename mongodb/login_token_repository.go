package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/logintoken"
)

// LoginTokenRepository is the Mongo-backed implementation of
// logintoken.Repository.
type LoginTokenRepository struct {
	coll *mongo.Collection
}

// NewLoginTokenRepository builds the repository on the given database.
func NewLoginTokenRepository(db *mongo.Database) *LoginTokenRepository {
	return &LoginTokenRepository{coll: db.Collection(LoginTokensCollection)}
}

// EnsureIndexes creates the token lookup index and the TTL index that
// reclaims expired tokens server-side.
func (r *LoginTokenRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create login token indexes: %w", err)
	}
	return nil
}

// Save implements logintoken.Repository.Save.
func (r *LoginTokenRepository) Save(ctx context.Context, record *domain.LoginTokenRecord) error {
	if _, err := r.coll.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert login token: %w", err)
	}
	return nil
}

// Consume implements logintoken.Repository.Consume. FindOneAndDelete makes
// the fetch-and-invalidate atomic, so a token redeems at most once even with
// racing callers.
func (r *LoginTokenRepository) Consume(ctx context.Context, token string) (*domain.LoginTokenRecord, error) {
	var record domain.LoginTokenRecord
	err := r.coll.FindOneAndDelete(ctx, bson.M{"token": token}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, logintoken.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume login token: %w", err)
	}
	return &record, nil
}

// Delete implements logintoken.Repository.Delete.
func (r *LoginTokenRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"token": token}); err != nil {
		return fmt.Errorf("failed to delete login token: %w", err)
	}
	return nil
}

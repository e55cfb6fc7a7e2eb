package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store using MongoDB. The conditional status update
// maps to a single UpdateOne with the expected status in the filter.
type MongoStore struct {
	client   *mongo.Client
	payments *mongo.Collection
	teams    *mongo.Collection
}

// NewMongoStore creates a new MongoDB-backed store.
func NewMongoStore(connectionString, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		// Disconnect() error during initialization cleanup is not
		// actionable; the original connection failure is the one to return.
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:   client,
		payments: db.Collection("payments"),
		teams:    db.Collection("teams"),
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.payments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "team_slug", Value: 1}}},
		{
			Keys: bson.D{{Key: "team_slug", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.D{{Key: "fingerprint", Value: bson.D{{Key: "$gt", Value: ""}}}},
			),
		},
	})
	if err != nil {
		return fmt.Errorf("create payment indexes: %w", err)
	}
	return nil
}

// CreatePayment inserts a new payment.
func (s *MongoStore) CreatePayment(ctx context.Context, payment Payment) error {
	_, err := s.payments.InsertOne(ctx, payment)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by id.
func (s *MongoStore) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	var payment Payment
	err := s.payments.FindOne(ctx, bson.M{"_id": paymentID}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("find payment: %w", err)
	}
	return payment, nil
}

// GetPaymentByFingerprint retrieves a payment by init fingerprint.
func (s *MongoStore) GetPaymentByFingerprint(ctx context.Context, teamSlug, fingerprint string) (Payment, error) {
	var payment Payment
	filter := bson.M{"team_slug": teamSlug, "fingerprint": fingerprint}
	err := s.payments.FindOne(ctx, filter).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("find payment by fingerprint: %w", err)
	}
	return payment, nil
}

// UpdatePaymentStatus performs the conditional status write in one round trip.
func (s *MongoStore) UpdatePaymentStatus(ctx context.Context, paymentID string, expected, next Status, updatedAt time.Time) error {
	filter := bson.M{"_id": paymentID, "status": string(expected)}
	update := bson.M{"$set": bson.M{"status": string(next), "updated_at": updatedAt}}

	res, err := s.payments.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// Zero matches: either the payment is gone or the status moved under us.
	if _, err := s.GetPayment(ctx, paymentID); err != nil {
		return err
	}
	return ErrStatusConflict
}

// GetTeam retrieves a team by slug.
func (s *MongoStore) GetTeam(ctx context.Context, slug string) (Team, error) {
	var team Team
	err := s.teams.FindOne(ctx, bson.M{"_id": slug}).Decode(&team)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Team{}, ErrNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("find team: %w", err)
	}
	return team, nil
}

// UpsertTeam creates or replaces a team record.
func (s *MongoStore) UpsertTeam(ctx context.Context, team Team) error {
	filter := bson.M{"_id": team.Slug}
	update := bson.M{"$set": team}
	opts := options.Update().SetUpsert(true)

	if _, err := s.teams.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("upsert team: %w", err)
	}
	return nil
}

// TouchTeamLogin records the last successful authentication instant.
func (s *MongoStore) TouchTeamLogin(ctx context.Context, slug string, at time.Time) error {
	res, err := s.teams.UpdateOne(ctx,
		bson.M{"_id": slug},
		bson.M{"$set": bson.M{"last_login_at": at}})
	if err != nil {
		return fmt.Errorf("touch team login: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

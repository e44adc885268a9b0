package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/endpix/internal/models"
)

const (
	stagedCollection = "tempusers"
	usersCollection  = "users"
)

// MongoStore persists staged and durable identities in MongoDB.
type MongoStore struct {
	staged *mongo.Collection
	users  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		staged: db.Collection(stagedCollection),
		users:  db.Collection(usersCollection),
	}
}

// EnsureIndexes creates the unique email indexes on both collections and the
// TTL index that removes staged identities once otp_expiry has passed.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.staged.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "otp_expiry", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("otp_expiry_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo %s indexes: %w", stagedCollection, err)
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("mongo %s indexes: %w", usersCollection, err)
	}
	return nil
}

// ── staged identities ───────────────────────────────────────

func (s *MongoStore) InsertStaged(ctx context.Context, st *models.StagedIdentity) error {
	res, err := s.staged.InsertOne(ctx, st)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("mongo insert staged: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		st.ID = oid
	}
	return nil
}

func (s *MongoStore) FindStaged(ctx context.Context, email string) (*models.StagedIdentity, error) {
	var st models.StagedIdentity
	err := s.staged.FindOne(ctx, bson.M{"email": email}).Decode(&st)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo find staged: %w", err)
	}
	return &st, nil
}

// RefreshStagedOTP replaces the code and expiry of an existing staged identity.
func (s *MongoStore) RefreshStagedOTP(ctx context.Context, email, otp string, expiry time.Time) error {
	res, err := s.staged.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"otp": otp, "otp_expiry": expiry}},
	)
	if err != nil {
		return fmt.Errorf("mongo refresh staged otp: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteStaged(ctx context.Context, email string) error {
	if _, err := s.staged.DeleteOne(ctx, bson.M{"email": email}); err != nil {
		return fmt.Errorf("mongo delete staged: %w", err)
	}
	return nil
}

// DeleteExpiredStaged removes staged identities whose expiry is at or before now.
func (s *MongoStore) DeleteExpiredStaged(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.staged.DeleteMany(ctx, bson.M{"otp_expiry": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("mongo delete expired staged: %w", err)
	}
	return res.DeletedCount, nil
}

// ── durable identities ─────────────────────────────────────

func (s *MongoStore) InsertIdentity(ctx context.Context, id *models.Identity) error {
	if id.ID.IsZero() {
		id.ID = primitive.NewObjectID()
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	if _, err := s.users.InsertOne(ctx, id); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("mongo insert identity: %w", err)
	}
	return nil
}

func (s *MongoStore) IdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return s.findIdentity(ctx, bson.M{"email": email})
}

func (s *MongoStore) IdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findIdentity(ctx, bson.M{"_id": oid})
}

// SetImage records the latest image reference for an identity.
func (s *MongoStore) SetImage(ctx context.Context, id, url, key string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"image_url": url, "image_key": key}},
	)
	if err != nil {
		return fmt.Errorf("mongo set image: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) findIdentity(ctx context.Context, filter bson.M) (*models.Identity, error) {
	var u models.Identity
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo find identity: %w", err)
	}
	return &u, nil
}

package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sessionguard/authgate/internal/core/domain"
)

const usersCollection = "users"

// UserRepository implements ports.UserRepository using MongoDB. Document ids
// are the service-generated user ids.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(usersCollection)}
}

type mongoUser struct {
	ID                 string     `bson:"_id"`
	Email              string     `bson:"email"`
	Name               string     `bson:"name"`
	PasswordHash       string     `bson:"password_hash,omitempty"`
	Role               string     `bson:"role"`
	Disabled           bool       `bson:"disabled"`
	OnboardingComplete bool       `bson:"onboarding_complete"`
	LastLoginAt        *time.Time `bson:"last_login_at,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

// EnsureIndexes creates the unique email index. Safe to call on every start.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := mongoUser{
		ID:                 user.ID,
		Email:              user.Email,
		Name:               user.Name,
		PasswordHash:       user.PasswordHash,
		Role:               user.Role,
		Disabled:           user.Disabled,
		OnboardingComplete: user.OnboardingComplete,
		CreatedAt:          user.CreatedAt.UTC(),
		UpdatedAt:          user.UpdatedAt.UTC(),
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, unavailable("insert user", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"last_login_at": at.UTC(), "updated_at": at.UTC()})
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"password_hash": hash, "updated_at": at.UTC()})
}

func (r *UserRepository) SetOnboardingComplete(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"onboarding_complete": true, "updated_at": at.UTC()})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, unavailable("find user", err)
	}
	return mu.toDomain(), nil
}

// updateOne is a single-document $set, atomic on the server.
func (r *UserRepository) updateOne(ctx context.Context, id string, set bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return unavailable("update user", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (mu *mongoUser) toDomain() *domain.User {
	var lastLogin *time.Time
	if mu.LastLoginAt != nil {
		t := mu.LastLoginAt.UTC()
		lastLogin = &t
	}
	return &domain.User{
		ID:                 mu.ID,
		Email:              mu.Email,
		Name:               mu.Name,
		PasswordHash:       mu.PasswordHash,
		Role:               mu.Role,
		Disabled:           mu.Disabled,
		OnboardingComplete: mu.OnboardingComplete,
		LastLoginAt:        lastLogin,
		CreatedAt:          mu.CreatedAt.UTC(),
		UpdatedAt:          mu.UpdatedAt.UTC(),
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

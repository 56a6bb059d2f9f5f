package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

// UserDirectory implements ports.UserDirectory on the users collection.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection(collectionUsers)}
}

var _ ports.UserDirectory = (*UserDirectory)(nil)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	IsActive     bool               `bson:"is_active"`
	Role         string             `bson:"role"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		IsActive:     d.IsActive,
		Role:         domain.Role(d.Role),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

func (r *UserDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, "find user by id", bson.M{"_id": oid})
}

func (r *UserDirectory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find user by email", bson.M{"email": domain.NormalizeEmail(email)})
}

func (r *UserDirectory) findOne(ctx context.Context, op string, filter bson.M) (*domain.User, error) {
	var doc userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, wrapErr(op, err)
	}
	return doc.toDomain(), nil
}

// Create inserts a single document, which MongoDB applies atomically. The
// unique email index turns a concurrent duplicate into domain.ErrUserExists.
func (r *UserDirectory) Create(ctx context.Context, user *domain.User, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Email:        domain.NormalizeEmail(user.Email),
		PasswordHash: passwordHash,
		IsActive:     user.IsActive,
		Role:         string(user.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.ID != "" {
		oid, err := primitive.ObjectIDFromHex(user.ID)
		if err != nil {
			return nil, wrapErr("insert user", err)
		}
		doc.ID = oid
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, wrapErr("insert user", err)
	}
	return doc.toDomain(), nil
}

// Update sets the role and active flag and returns the stored record.
func (r *UserDirectory) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	update := bson.M{"$set": bson.M{
		"role":       string(user.Role),
		"is_active":  user.IsActive,
		"updated_at": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, wrapErr("update user", err)
	}
	return doc.toDomain(), nil
}

func (r *UserDirectory) ListAll(ctx context.Context) ([]*domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrapErr("list users", err)
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("decode users", err)
	}

	users := make([]*domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toDomain())
	}
	return users, nil
}

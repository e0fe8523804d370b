package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
)

const accountsCollection = "accounts"

// secretProjection hides the verifier and reset token from ordinary reads.
var secretProjection = bson.M{
	"password_hash":          0,
	"reset_token_hash":       0,
	"reset_token_expires_at": 0,
}

type AccountRepository struct {
	coll *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{coll: db.Collection(accountsCollection)}
}

type mongoAccount struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	Name                string             `bson:"name"`
	Email               string             `bson:"email"`
	PasswordHash        string             `bson:"password_hash,omitempty"`
	Role                string             `bson:"role"`
	FailedAttempts      int                `bson:"failed_attempts"`
	LockoutUntil        *time.Time         `bson:"lockout_until,omitempty"`
	LastLoginAt         *time.Time         `bson:"last_login_at,omitempty"`
	ResetTokenHash      string             `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiresAt *time.Time         `bson:"reset_token_expires_at,omitempty"`
	CreatedAt           time.Time          `bson:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at"`
}

func (m *mongoAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:                  m.ID.Hex(),
		Name:                m.Name,
		Email:               m.Email,
		PasswordHash:        m.PasswordHash,
		Role:                m.Role,
		FailedAttempts:      m.FailedAttempts,
		LockoutUntil:        utcPtr(m.LockoutUntil),
		LastLoginAt:         utcPtr(m.LastLoginAt),
		ResetTokenHash:      m.ResetTokenHash,
		ResetTokenExpiresAt: utcPtr(m.ResetTokenExpiresAt),
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

// EnsureIndexes creates the unique email index and the reset token lookup index.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "reset_token_hash", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *AccountRepository) Insert(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	doc := mongoAccount{
		Name:         account.Name,
		Email:        domain.NormalizeEmail(account.Email),
		PasswordHash: account.PasswordHash,
		Role:         account.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if doc.Role == "" {
		doc.Role = domain.RoleUser
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrAccountExists
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("insert account: unexpected id type %T", res.InsertedID)
	}
	doc.ID = id
	doc.PasswordHash = ""
	return doc.toDomain(), nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string, includeSecret bool) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)}, includeSecret)
}

func (r *AccountRepository) FindByID(ctx context.Context, id string, includeSecret bool) (*domain.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrAccountNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid}, includeSecret)
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M, includeSecret bool) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne()
	if !includeSecret {
		opts.SetProjection(secretProjection)
	}

	var doc mongoAccount
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *AccountRepository) UpdateFields(ctx context.Context, id string, u ports.AccountUpdate) (*domain.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrAccountNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Email != nil {
		set["email"] = domain.NormalizeEmail(*u.Email)
	}
	if u.Role != nil {
		set["role"] = *u.Role
	}
	if u.PasswordHash != nil {
		set["password_hash"] = *u.PasswordHash
	}
	update := bson.M{"$set": set}
	if u.ClearResetToken {
		update["$unset"] = bson.M{"reset_token_hash": "", "reset_token_expires_at": ""}
	}

	return r.findOneAndUpdate(ctx, bson.M{"_id": oid}, update, domain.ErrAccountNotFound)
}

func (r *AccountRepository) DeleteByID(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context, page, limit int) ([]*domain.Account, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if int64(page-1) > total/int64(limit) {
		return []*domain.Account{}, total, nil
	}

	opts := options.Find().
		SetProjection(secretProjection).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page-1) * int64(limit)).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]*domain.Account, 0, limit)
	for cur.Next(ctx) {
		var doc mongoAccount
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode account: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return out, total, nil
}

// RecordFailedAttempt applies the lockout transition in one pipeline update
// so concurrent failures race only inside the server, never across round trips.
func (r *AccountRepository) RecordFailedAttempt(ctx context.Context, id string, now time.Time, policy domain.LockoutPolicy) (*domain.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrAccountNotFound
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": oid}, failedAttemptPipeline(now.UTC(), policy), domain.ErrAccountNotFound)
}

// failedAttemptPipeline mirrors domain.LockoutPolicy.ApplyFailure.
func failedAttemptPipeline(now time.Time, policy domain.LockoutPolicy) mongo.Pipeline {
	isDate := bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$lockout_until"}}, "date"}}}
	expired := bson.D{{Key: "$and", Value: bson.A{
		isDate,
		bson.D{{Key: "$lte", Value: bson.A{"$lockout_until", now}}},
	}}}
	lockedNow := bson.D{{Key: "$and", Value: bson.A{
		isDate,
		bson.D{{Key: "$gt", Value: bson.A{"$lockout_until", now}}},
	}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "failed_attempts", Value: bson.D{{Key: "$cond", Value: bson.A{
				expired,
				1,
				bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$failed_attempts", 0}}}, 1}}},
			}}}},
			{Key: "lockout_until", Value: bson.D{{Key: "$cond", Value: bson.A{expired, "$$REMOVE", "$lockout_until"}}}},
			{Key: "updated_at", Value: now},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "lockout_until", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$gte", Value: bson.A{"$failed_attempts", policy.Threshold}}},
					bson.D{{Key: "$not", Value: bson.A{lockedNow}}},
				}}},
				now.Add(policy.Duration),
				"$lockout_until",
			}}}},
		}}},
	}
}

func (r *AccountRepository) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrAccountNotFound
	}
	return r.updateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"failed_attempts": 0,
			"last_login_at":   now.UTC(),
			"updated_at":      now.UTC(),
		},
		"$unset": bson.M{"lockout_until": ""},
	})
}

func (r *AccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrAccountNotFound
	}
	return r.updateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": expiresAt.UTC(),
		"updated_at":             time.Now().UTC(),
	}})
}

// ClearResetToken withdraws the token only while the stored digest is still
// tokenHash, so a newer token issued in between survives.
func (r *AccountRepository) ClearResetToken(ctx context.Context, id, tokenHash string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = r.coll.UpdateOne(ctx, bson.M{"_id": oid, "reset_token_hash": tokenHash}, bson.M{
		"$set":   bson.M{"updated_at": time.Now().UTC()},
		"$unset": bson.M{"reset_token_hash": "", "reset_token_expires_at": ""},
	})
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken matches on the digest through the index, so no
// byte-wise comparison of secrets happens in this process.
func (r *AccountRepository) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*domain.Account, error) {
	filter := bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{
		"$set": bson.M{
			"password_hash":   passwordHash,
			"failed_attempts": 0,
			"updated_at":      now.UTC(),
		},
		"$unset": bson.M{
			"reset_token_hash":       "",
			"reset_token_expires_at": "",
			"lockout_until":          "",
		},
	}
	return r.findOneAndUpdate(ctx, filter, update, domain.ErrResetTokenInvalid)
}

func (r *AccountRepository) findOneAndUpdate(ctx context.Context, filter bson.M, update interface{}, notFound error) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(secretProjection)

	var doc mongoAccount
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrAccountExists
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *AccountRepository) updateOne(ctx context.Context, filter bson.M, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

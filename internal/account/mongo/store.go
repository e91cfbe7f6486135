// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

// Package mongo implements account.Store on a MongoDB collection with a
// unique index on email.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/authflows/authflows/internal/account"
)

// DefaultCollection is the collection name used by the CLI.
const DefaultCollection = "accounts"

const emailIndexName = "accounts_email_unique"

type document struct {
	ID                     string    `bson:"_id"`
	Email                  string    `bson:"email"`
	EncodedPassword        string    `bson:"encoded_password"`
	Enabled                bool      `bson:"enabled"`
	LoginAttemptsCounter   int       `bson:"login_attempts_counter"`
	PasswordLastChangeDate time.Time `bson:"password_last_change_date"`
	CreatedAt              time.Time `bson:"created_at"`
	UpdatedAt              time.Time `bson:"updated_at"`
}

// Store implements account.Store and account.AttemptsIncrementer.
type Store struct {
	collection *mongo.Collection
}

// NewStore creates a Store over c. Call EnsureIndexes once before use.
func NewStore(c *mongo.Collection) *Store {
	return &Store{collection: c}
}

// Connect opens a client for uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("MONGO_CONNECT_FAILED").With("operation", "connect").Wrap(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, oops.Code("MONGO_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return client, nil
}

// EnsureIndexes creates the unique email index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName(emailIndexName).SetUnique(true),
	})
	if err != nil {
		return oops.Code("MONGO_INDEX_FAILED").With("index", emailIndexName).Wrap(err)
	}
	return nil
}

// Insert stores a new account.
func (s *Store) Insert(ctx context.Context, acc account.Account) error {
	_, err := s.collection.InsertOne(ctx, toDocument(acc))
	if mongo.IsDuplicateKeyError(err) {
		return account.ErrAlreadyExists
	}
	if err != nil {
		return oops.With("operation", "insert account").With("email", acc.Email).Wrap(err)
	}
	return nil
}

// Find returns the account for email.
func (s *Store) Find(ctx context.Context, email string) (account.Account, error) {
	var doc document
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, oops.With("operation", "find account").With("email", email).Wrap(err)
	}
	return fromDocument(doc)
}

// Update replaces the stored document when it still matches prev. A miss is
// told apart from a deleted document with a second lookup.
func (s *Store) Update(ctx context.Context, prev, next account.Account) error {
	filter := bson.M{
		"email":                  next.Email,
		"encoded_password":       prev.EncodedPassword,
		"enabled":                prev.Enabled,
		"login_attempts_counter": prev.LoginAttemptsCounter,
	}
	res, err := s.collection.ReplaceOne(ctx, filter, toDocument(next))
	if err != nil {
		return oops.With("operation", "update account").With("email", next.Email).Wrap(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	err = s.collection.FindOne(ctx, bson.M{"email": next.Email},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return account.ErrNotFound
	}
	if err != nil {
		return oops.With("operation", "check account exists").With("email", next.Email).Wrap(err)
	}
	return account.ErrConflict
}

// Delete removes the account for email.
func (s *Store) Delete(ctx context.Context, email string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"email": email})
	if err != nil {
		return oops.With("operation", "delete account").With("email", email).Wrap(err)
	}
	if res.DeletedCount == 0 {
		return account.ErrNotFound
	}
	return nil
}

// IncrementAttempts applies $inc in a single FindOneAndUpdate.
func (s *Store) IncrementAttempts(ctx context.Context, email string, at time.Time) (account.Account, error) {
	update := bson.M{
		"$inc": bson.M{"login_attempts_counter": 1},
		"$max": bson.M{"updated_at": at},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc document
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, oops.With("operation", "increment attempts").With("email", email).Wrap(err)
	}
	return fromDocument(doc)
}

func toDocument(acc account.Account) document {
	return document{
		ID:                     acc.ID.String(),
		Email:                  acc.Email,
		EncodedPassword:        acc.EncodedPassword,
		Enabled:                acc.Enabled,
		LoginAttemptsCounter:   acc.LoginAttemptsCounter,
		PasswordLastChangeDate: acc.PasswordLastChangeDate,
		CreatedAt:              acc.CreatedAt,
		UpdatedAt:              acc.UpdatedAt,
	}
}

func fromDocument(doc document) (account.Account, error) {
	id, err := ulid.Parse(doc.ID)
	if err != nil {
		return account.Account{}, oops.Code("ACCOUNT_CORRUPT_ID").
			With("email", doc.Email).
			With("id", doc.ID).
			Wrap(err)
	}
	return account.Account{
		ID:                     id,
		Email:                  doc.Email,
		EncodedPassword:        doc.EncodedPassword,
		Enabled:                doc.Enabled,
		LoginAttemptsCounter:   doc.LoginAttemptsCounter,
		PasswordLastChangeDate: doc.PasswordLastChangeDate.UTC(),
		CreatedAt:              doc.CreatedAt.UTC(),
		UpdatedAt:              doc.UpdatedAt.UTC(),
	}, nil
}

// Compile-time interface checks.
var (
	_ account.Store               = (*Store)(nil)
	_ account.AttemptsIncrementer = (*Store)(nil)
)

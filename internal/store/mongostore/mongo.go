// Package mongostore implements store.Store on MongoDB using server-side
// upserts ($setOnInsert, $inc, $addToSet).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/retry"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

const (
	statementsCollection = "statements"
	latestCollection     = "latest_responses"
)

// document is the stored shape of a statement.
type document struct {
	ID                 string    `bson:"_id"`
	Text               string    `bson:"text"`
	SearchText         string    `bson:"search_text"`
	InResponseTo       string    `bson:"in_response_to"`
	SearchInResponseTo string    `bson:"search_in_response_to"`
	Conversation       string    `bson:"conversation"`
	Persona            string    `bson:"persona"`
	Tags               []string  `bson:"tags"`
	Vector             []float32 `bson:"vector,omitempty"`
	VectorNorm         float64   `bson:"vector_norm"`
	Count              int       `bson:"count"`
	CreatedAt          time.Time `bson:"created_at"`
	LastUpdatedAt      time.Time `bson:"last_updated_at"`
}

func (d *document) statement() *models.Statement {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.Statement{
		ID:                 d.ID,
		Text:               d.Text,
		SearchText:         d.SearchText,
		InResponseTo:       d.InResponseTo,
		SearchInResponseTo: d.SearchInResponseTo,
		Conversation:       d.Conversation,
		Persona:            d.Persona,
		Tags:               tags,
		Vector:             d.Vector,
		VectorNorm:         d.VectorNorm,
		Count:              d.Count,
		CreatedAt:          d.CreatedAt.UTC(),
		LastUpdatedAt:      d.LastUpdatedAt.UTC(),
	}
}

func newDocument(s *models.Statement, now time.Time) *document {
	d := &document{
		ID:                 s.ID,
		Text:               s.Text,
		SearchText:         s.SearchText,
		InResponseTo:       s.InResponseTo,
		SearchInResponseTo: s.SearchInResponseTo,
		Conversation:       s.Conversation,
		Persona:            s.Persona,
		Tags:               s.Tags,
		Vector:             s.Vector,
		VectorNorm:         s.VectorNorm,
		Count:              1,
		CreatedAt:          s.CreatedAt,
		LastUpdatedAt:      now,
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d
}

// Options tune retries on duplicate-key races.
type Options struct {
	Database   string
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Store is the MongoDB implementation of store.Store.
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to uri and ensures the indexes the merge protocol relies on.
func Open(ctx context.Context, uri string, opts Options) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	if opts.Database == "" {
		opts.Database = "learnbot"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Millisecond
	}
	s := &Store{
		client:     client,
		db:         client.Database(opts.Database),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(statementsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "text", Value: 1}, {Key: "in_response_to", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "conversation", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create statement indexes: %w", err)
	}
	_, err = s.db.Collection(latestCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create latest index: %w", err)
	}
	return nil
}

func (s *Store) collection(c store.Collection) *mongo.Collection {
	if c == store.CollectionLatest {
		return s.db.Collection(latestCollection)
	}
	return s.db.Collection(statementsCollection)
}

func (s *Store) Filter(ctx context.Context, q store.Query) iter.Seq2[*models.Statement, error] {
	return func(yield func(*models.Statement, error) bool) {
		pipeline, err := buildPipeline(q)
		if err != nil {
			yield(nil, fmt.Errorf("filter statements: %w", err))
			return
		}

		cur, err := s.collection(q.Collection).Aggregate(ctx, pipeline)
		if err != nil {
			yield(nil, fmt.Errorf("filter statements: %w", err))
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var d document
			if err := cur.Decode(&d); err != nil {
				yield(nil, fmt.Errorf("decode statement: %w", err))
				return
			}
			if !yield(d.statement(), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate statements: %w", err))
		}
	}
}

// MergeUpsert runs one FindOneAndUpdate with upsert. Two writers racing to
// insert the same key make one of them fail on the unique index; that
// writer retries and lands on the update branch.
func (s *Store) MergeUpsert(ctx context.Context, st *models.Statement, p store.MergePolicy) (*models.Statement, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("merge statement: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	coll := s.collection(p.Target)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := retry.Sleep(ctx, s.retryDelay, attempt); err != nil {
				return nil, err
			}
			s.logger.Debug("duplicate key on upsert, retrying",
				zap.String("text", st.Text),
				zap.Int("attempt", attempt+1),
			)
		}

		now := time.Now().UTC()
		var d document
		err := coll.FindOneAndUpdate(ctx, matchFilter(st, p), buildUpdate(st, p, now), opts).Decode(&d)
		if err == nil {
			return d.statement(), nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("upsert statement: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", store.ErrTransientStorage, lastErr)
}

// Create inserts st unless the (text, in_response_to) pair exists.
func (s *Store) Create(ctx context.Context, st *models.Statement) (*models.Statement, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("create statement: %w", err)
	}
	now := time.Now().UTC()
	filter := bson.D{{Key: "text", Value: st.Text}, {Key: "in_response_to", Value: st.InResponseTo}}
	update := bson.D{{Key: "$setOnInsert", Value: newDocument(st, now)}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var d document
	err := s.collection(store.CollectionStatements).FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if mongo.IsDuplicateKeyError(err) {
		err = s.collection(store.CollectionStatements).FindOne(ctx, filter).Decode(&d)
	}
	if err != nil {
		return nil, fmt.Errorf("create statement: %w", err)
	}
	return d.statement(), nil
}

func (s *Store) CreateMany(ctx context.Context, stmts []*models.Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(stmts))
	for _, st := range stmts {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("create statement: %w", err)
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "text", Value: st.Text}, {Key: "in_response_to", Value: st.InResponseTo}}).
			SetUpdate(bson.D{{Key: "$setOnInsert", Value: newDocument(st, now)}}).
			SetUpsert(true))
	}
	_, err := s.collection(store.CollectionStatements).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("create statements: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.collection(store.CollectionStatements).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count statements: %w", err)
	}
	return int(n), nil
}

func (s *Store) Random(ctx context.Context) (*models.Statement, error) {
	cur, err := s.collection(store.CollectionStatements).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("random statement: %w", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("random statement: %w", err)
		}
		return nil, store.ErrEmptyCorpus
	}
	var d document
	if err := cur.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}
	return d.statement(), nil
}

func (s *Store) Remove(ctx context.Context, text string) error {
	if _, err := s.collection(store.CollectionStatements).DeleteMany(ctx, bson.D{{Key: "text", Value: text}}); err != nil {
		return fmt.Errorf("remove statement: %w", err)
	}
	return nil
}

func (s *Store) Drop(ctx context.Context) error {
	for _, c := range []store.Collection{store.CollectionStatements, store.CollectionLatest} {
		if _, err := s.collection(c).DeleteMany(ctx, bson.D{}); err != nil {
			return fmt.Errorf("drop %s: %w", c, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return err
	}
	return nil
}

// Package mongo implements jobs.Repository on a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore"
)

// DefaultCollection is the collection job records are stored in.
const DefaultCollection = "jobs"

var _ jobs.Repository = (*Store)(nil)

// Store persists job records as documents keyed by job id.
// The caller owns the client lifecycle unless the Store was created by
// Connect.
type Store struct {
	col    *mongod.Collection
	client *mongod.Client
}

// New creates a Store on an existing collection.
func New(col *mongod.Collection) *Store {
	return &Store{col: col}
}

// Connect opens a client for uri and returns a Store on database/collection.
// Close disconnects the client.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	if uri == "" || database == "" {
		return nil, errors.New("mongo job store needs uri and database")
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{col: client.Database(database).Collection(collection), client: client}
	if err := s.Migrate(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Migrate creates the indexes used by the listing queries.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongod.IndexModel{
		{Keys: bson.D{{Key: "job_type", Value: 1}, {Key: "started", Value: -1}}},
		{Keys: bson.D{{Key: "started", Value: -1}}},
		{Keys: bson.D{{Key: "stopped", Value: 1}}},
	})
	if err != nil {
		return s.wrap("Migrate", "", err)
	}
	return nil
}

// Close disconnects the client if the Store owns it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) CreateOrUpdate(ctx context.Context, record *jobs.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("job record with id is required")
	}
	m := toModel(record)
	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return s.wrap("CreateOrUpdate", record.ID, err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, id string) (*jobs.Record, error) {
	var m jobModel
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
		}
		return nil, s.wrap("FindOne", id, err)
	}
	return fromModel(&m), nil
}

func (s *Store) FindAll(ctx context.Context) ([]*jobs.Record, error) {
	return s.find(ctx, "FindAll", bson.M{}, 0)
}

func (s *Store) FindByType(ctx context.Context, jobType string) ([]*jobs.Record, error) {
	return s.find(ctx, "FindByType", bson.M{"job_type": jobType}, 0)
}

func (s *Store) FindLatest(ctx context.Context, n int) ([]*jobs.Record, error) {
	return s.find(ctx, "FindLatest", bson.M{}, n)
}

func (s *Store) FindLatestBy(ctx context.Context, jobType string, n int) ([]*jobs.Record, error) {
	return s.find(ctx, "FindLatestBy", bson.M{"job_type": jobType}, n)
}

func (s *Store) FindRunning(ctx context.Context) ([]*jobs.Record, error) {
	// Matches both a missing and a null stopped field.
	return s.find(ctx, "FindRunning", bson.M{"stopped": nil}, 0)
}

func (s *Store) RemoveIfStopped(ctx context.Context, id string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id, "stopped": bson.M{"$ne": nil}})
	if err != nil {
		return s.wrap("RemoveIfStopped", id, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.col.DeleteMany(ctx, bson.M{}); err != nil {
		return s.wrap("DeleteAll", "", err)
	}
	return nil
}

func (s *Store) find(ctx context.Context, op string, filter bson.M, limit int) ([]*jobs.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, s.wrap(op, "", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, s.wrap(op, "", err)
	}

	out := make([]*jobs.Record, 0, len(models))
	for i := range models {
		out = append(out, fromModel(&models[i]))
	}
	return out, nil
}

func (s *Store) wrap(op, id string, err error) error {
	return &jobstore.StoreError{Op: op, Backend: jobstore.BackendMongo, ID: id, Err: err}
}

// ── model ─────────────────────────────────────────────────────────

type jobModel struct {
	ID          string         `bson:"_id"`
	URI         string         `bson:"uri"`
	JobType     string         `bson:"job_type"`
	Started     time.Time      `bson:"started"`
	Stopped     *time.Time     `bson:"stopped,omitempty"`
	Status      string         `bson:"status"`
	Messages    []jobs.Message `bson:"messages"`
	LastUpdated time.Time      `bson:"last_updated"`
	Hostname    string         `bson:"hostname,omitempty"`
}

func toModel(r *jobs.Record) *jobModel {
	msgs := make([]jobs.Message, len(r.Messages))
	copy(msgs, r.Messages)
	m := &jobModel{
		ID:          r.ID,
		URI:         r.URI,
		JobType:     r.JobType,
		Started:     r.Started.UTC(),
		Status:      string(r.Status),
		Messages:    msgs,
		LastUpdated: r.LastUpdated.UTC(),
		Hostname:    r.Hostname,
	}
	if r.Stopped != nil {
		t := r.Stopped.UTC()
		m.Stopped = &t
	}
	return m
}

func fromModel(m *jobModel) *jobs.Record {
	r := &jobs.Record{
		ID:          m.ID,
		URI:         m.URI,
		JobType:     m.JobType,
		Started:     m.Started.UTC(),
		Status:      jobs.Status(m.Status),
		Messages:    make([]jobs.Message, 0, len(m.Messages)),
		LastUpdated: m.LastUpdated.UTC(),
		Hostname:    m.Hostname,
	}
	for _, msg := range m.Messages {
		msg.Timestamp = msg.Timestamp.UTC()
		r.Messages = append(r.Messages, msg)
	}
	if m.Stopped != nil {
		t := m.Stopped.UTC()
		r.Stopped = &t
	}
	return r
}

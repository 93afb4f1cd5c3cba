// Package mongo hosts the MongoDB client used by the thread store.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
)

const (
	defaultThreadsCollection = "partview_threads"
	defaultOpTimeout         = 5 * time.Second
	threadClientName         = "thread-mongo"
)

// Client exposes Mongo-backed operations for conversation threads.
type Client interface {
	health.Pinger

	LoadThread(ctx context.Context, threadID string) (thread.Thread, error)
	SaveThread(ctx context.Context, t thread.Thread) error
	AppendMessages(ctx context.Context, threadID string, at time.Time, msgs ...parts.Message) error
	DeleteThread(ctx context.Context, threadID string) error
}

// Options configures the Mongo thread client.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
	// Classifier decodes stored parts. Defaults to parts.NewClassifier().
	Classifier *parts.Classifier
}

type client struct {
	mongo      *mongodriver.Client
	threads    collection
	classifier *parts.Classifier
	timeout    time.Duration
}

// New returns a Client backed by MongoDB.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	name := opts.Collection
	if name == "" {
		name = defaultThreadsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(name)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, coll); err != nil {
		return nil, err
	}
	cl, err := newClientWithCollection(opts.Client, coll, timeout)
	if err != nil {
		return nil, err
	}
	if opts.Classifier != nil {
		cl.classifier = opts.Classifier
	}
	return cl, nil
}

func (c *client) Name() string {
	return threadClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.mongo == nil {
		return errors.New("mongo client not configured")
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) LoadThread(ctx context.Context, threadID string) (thread.Thread, error) {
	if threadID == "" {
		return thread.Thread{}, thread.ErrMissingThreadID
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc threadDocument
	if err := c.threads.FindOne(ctx, bson.M{"_id": threadID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return thread.Thread{}, thread.ErrThreadNotFound
		}
		return thread.Thread{}, fmt.Errorf("mongodb load thread %q: %w", threadID, err)
	}
	return doc.toThread(c.classifier)
}

func (c *client) SaveThread(ctx context.Context, t thread.Thread) error {
	if t.ID == "" {
		return thread.ErrMissingThreadID
	}
	doc, err := fromThread(t)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.threads.ReplaceOne(ctx, bson.M{"_id": t.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongodb save thread %q: %w", t.ID, err)
	}
	return nil
}

func (c *client) AppendMessages(ctx context.Context, threadID string, at time.Time, msgs ...parts.Message) error {
	if threadID == "" {
		return thread.ErrMissingThreadID
	}
	encoded, err := encodeMessages(msgs)
	if err != nil {
		return err
	}
	if encoded == nil {
		encoded = []string{}
	}
	at = at.UTC()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	update := bson.M{
		"$push":        bson.M{"messages": bson.M{"$each": encoded}},
		"$set":         bson.M{"updated_at": at},
		"$setOnInsert": bson.M{"created_at": at},
	}
	if _, err := c.threads.UpdateOne(ctx, bson.M{"_id": threadID}, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongodb append thread %q: %w", threadID, err)
	}
	return nil
}

func (c *client) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return thread.ErrMissingThreadID
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.threads.DeleteOne(ctx, bson.M{"_id": threadID})
	if err != nil {
		return fmt.Errorf("mongodb delete thread %q: %w", threadID, err)
	}
	if res == nil || res.DeletedCount == 0 {
		return thread.ErrThreadNotFound
	}
	return nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// threadDocument stores each message as its JSON wire encoding so parts the
// classifier does not recognize survive a round trip unchanged.
type threadDocument struct {
	ID        string    `bson:"_id"`
	Messages  []string  `bson:"messages"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func fromThread(t thread.Thread) (threadDocument, error) {
	msgs, err := encodeMessages(t.Messages)
	if err != nil {
		return threadDocument{}, err
	}
	if msgs == nil {
		msgs = []string{}
	}
	return threadDocument{
		ID:        t.ID,
		Messages:  msgs,
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
	}, nil
}

func (doc threadDocument) toThread(c *parts.Classifier) (thread.Thread, error) {
	var msgs parts.Conversation
	for i, raw := range doc.Messages {
		m, err := c.DecodeMessage([]byte(raw))
		if err != nil {
			return thread.Thread{}, fmt.Errorf("decode thread %q message %d: %w", doc.ID, i, err)
		}
		msgs = append(msgs, m)
	}
	return thread.Thread{
		ID:        doc.ID,
		Messages:  msgs,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

func encodeMessages(msgs []parts.Message) ([]string, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	out := make([]string, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode message %q: %w", m.ID, err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func ensureIndexes(ctx context.Context, threads collection) error {
	recent := mongodriver.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	}
	if _, err := threads.Indexes().CreateOne(ctx, recent); err != nil {
		return err
	}
	return nil
}

func newClientWithCollection(mongoClient *mongodriver.Client, threads collection, timeout time.Duration) (*client, error) {
	if threads == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{
		mongo:      mongoClient,
		threads:    threads,
		classifier: parts.NewClassifier(),
		timeout:    timeout,
	}, nil
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	ReplaceOne(ctx context.Context, filter any, replacement any,
		opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error)
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any,
		opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) ReplaceOne(ctx context.Context, filter any, replacement any,
	opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any,
	opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}

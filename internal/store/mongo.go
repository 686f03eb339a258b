package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seantiz/sisyphus/internal/model"
)

const tasksCollection = "tasks"

// Compile-time interface satisfaction check.
var _ Store = (*MongoStore)(nil)

// MongoStore implements Store on a MongoDB collection, one document per task.
type MongoStore struct {
	client *mongo.Client
	tasks  *mongo.Collection
}

type taskDocument struct {
	ID          string         `bson:"id"`
	Type        string         `bson:"type"`
	Blocking    bool           `bson:"blocking"`
	Params      paramsDocument `bson:"params"`
	Status      string         `bson:"status"`
	SubmittedAt time.Time      `bson:"submitted_at"`
	StartedAt   *time.Time     `bson:"started_at"`
	FinishedAt  *time.Time     `bson:"finished_at"`
	Result      *int64         `bson:"result"`
}

type paramsDocument struct {
	DurationMillis int64  `bson:"duration_millis"`
	MemoryUsage    *int64 `bson:"memory_usage"`
}

// NewMongoStore connects to uri, selects the tasks collection of database and
// ensures the unique index on id.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	tasks := client.Database(database).Collection(tasksCollection)
	_, err = tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create id index: %w", err)
	}

	return &MongoStore{client: client, tasks: tasks}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// InsertTask inserts a new task document.
func (s *MongoStore) InsertTask(ctx context.Context, t *model.Task) error {
	if _, err := s.tasks.InsertOne(ctx, toDocument(t)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert task %s: %w", t.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask applies a $set update filtered on the predecessor status.
func (s *MongoStore) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	from, ok := model.Predecessor(u.Status)
	if !ok {
		return fmt.Errorf("%w: nothing transitions to %q", ErrInvalidTransition, u.Status)
	}

	set := bson.M{"status": string(u.Status)}
	if u.StartedAt != nil {
		set["started_at"] = u.StartedAt.UTC()
	}
	if u.FinishedAt != nil {
		set["finished_at"] = u.FinishedAt.UTC()
	}
	if u.Result != nil {
		set["result"] = *checksumToInt(u.Result)
	}

	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"id": id, "status": string(from)},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	current, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.Status, u.Status)
}

// GetTask retrieves a task by id.
func (s *MongoStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var doc taskDocument
	err := s.tasks.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return doc.toTask(), nil
}

// ListTasks returns a page of tasks ordered by submitted_at DESC, along with
// the total count of all tasks. A limit of zero or less returns every task.
func (s *MongoStore) ListTasks(ctx context.Context, limit, offset int) ([]*model.Task, int, error) {
	total, err := s.tasks.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "submitted_at", Value: -1}, {Key: "id", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.tasks.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*model.Task
	for cursor.Next(ctx) {
		var doc taskDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, doc.toTask())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, int(total), nil
}

// ForEachTask streams every task document to fn.
func (s *MongoStore) ForEachTask(ctx context.Context, fn func(*model.Task) error) error {
	cursor, err := s.tasks.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("scan tasks: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc taskDocument
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode task: %w", err)
		}
		if err := fn(doc.toTask()); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterate tasks: %w", err)
	}
	return nil
}

func toDocument(t *model.Task) taskDocument {
	doc := taskDocument{
		ID:          t.ID,
		Type:        string(t.Type),
		Blocking:    t.Blocking,
		Params:      paramsDocument{DurationMillis: int64(t.Params.DurationMillis)},
		Status:      string(t.Status),
		SubmittedAt: t.SubmittedAt.UTC(),
		StartedAt:   utcPtr(t.StartedAt),
		FinishedAt:  utcPtr(t.FinishedAt),
		Result:      checksumToInt(t.Result),
	}
	if t.Params.MemoryUsage != nil {
		v := int64(*t.Params.MemoryUsage)
		doc.Params.MemoryUsage = &v
	}
	return doc
}

func (d taskDocument) toTask() *model.Task {
	t := &model.Task{
		ID:          d.ID,
		Type:        model.TaskType(d.Type),
		Blocking:    d.Blocking,
		Params:      model.TaskParams{DurationMillis: uint64(d.Params.DurationMillis)},
		Status:      model.TaskStatus(d.Status),
		SubmittedAt: d.SubmittedAt.UTC(),
		StartedAt:   utcPtr(d.StartedAt),
		FinishedAt:  utcPtr(d.FinishedAt),
		Result:      intToChecksum(d.Result),
	}
	if d.Params.MemoryUsage != nil {
		v := uint64(*d.Params.MemoryUsage)
		t.Params.MemoryUsage = &v
	}
	return t
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/spawnsvc/internal/scene"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB scene repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. spawnsvc
	Collection string // e.g. scenes
	Timeout    time.Duration
}

// MongoSceneRepo implements SceneRepo on MongoDB backend.
// Scenes are stored as plain documents so they stay queryable.
type MongoSceneRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoSceneRepo establishes connection and returns repository.
func NewMongoSceneRepo(cfg MongoConfig) (*MongoSceneRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "spawnsvc"
	}
	if cfg.Collection == "" {
		cfg.Collection = "scenes"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	repo := &MongoSceneRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: cfg.Timeout,
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

func (m *MongoSceneRepo) ensureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "scene_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("scene_id_unique"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, idx)
	return err
}

// Save upserts the scene and atomically increments its version.
func (m *MongoSceneRepo) Save(ctx context.Context, s *scene.Scene) (int64, error) {
	if err := checkSaveable(s); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"name":         s.Name,
			"spawn_points": s.SpawnPoints,
			"blockers":     s.Blockers,
			"updated_at":   time.Now().UTC(),
		},
		"$inc": bson.M{"version": int64(1)},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored scene.Scene
	err := m.collection.FindOneAndUpdate(ctx, bson.M{"scene_id": s.ID}, update, opts).Decode(&stored)
	if err != nil {
		return 0, fmt.Errorf("mongo save scene %s: %w", s.ID, err)
	}
	return stored.Version, nil
}

// Load implements SceneRepo.
func (m *MongoSceneRepo) Load(ctx context.Context, id string) (*scene.Scene, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var s scene.Scene
	err := m.collection.FindOne(ctx, bson.M{"scene_id": id}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo load scene %s: %w", id, err)
	}
	return &s, nil
}

// Delete implements SceneRepo.
func (m *MongoSceneRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	res, err := m.collection.DeleteOne(ctx, bson.M{"scene_id": id})
	if err != nil {
		return fmt.Errorf("mongo delete scene %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrSceneNotFound
	}
	return nil
}

// List implements SceneRepo.
func (m *MongoSceneRepo) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"scene_id": 1, "_id": 0}).
		SetSort(bson.D{{Key: "scene_id", Value: 1}})
	cur, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list scenes: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			SceneID string `bson:"scene_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.SceneID)
	}
	return ids, cur.Err()
}

// Close disconnects the client.
func (m *MongoSceneRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/storage/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresSceneRepo реализует SceneRepo для PostgreSQL.
// Версия увеличивается одним UPSERT ... RETURNING, колонка version - источник истины.
type PostgresSceneRepo struct {
	pool  *pgxpool.Pool
	codec *SceneCodec
}

// RunMigrations применяет миграции goose к базе dsn
func RunMigrations(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// NewPostgresSceneRepo применяет миграции и открывает пул соединений
func NewPostgresSceneRepo(ctx context.Context, dsn string) (*PostgresSceneRepo, error) {
	if err := RunMigrations(ctx, dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	codec, err := NewSceneCodec()
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSceneRepo{pool: pool, codec: codec}, nil
}

func (r *PostgresSceneRepo) Save(ctx context.Context, s *scene.Scene) (int64, error) {
	if err := checkSaveable(s); err != nil {
		return 0, err
	}

	stored := s.Clone()
	stored.Version = 0
	stored.UpdatedAt = time.Time{}
	data, err := r.codec.Encode(stored)
	if err != nil {
		return 0, err
	}

	var version int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO spawn_scenes (scene_id, version, payload)
		VALUES ($1, 1, $2)
		ON CONFLICT (scene_id) DO UPDATE SET
			version    = spawn_scenes.version + 1,
			payload    = EXCLUDED.payload,
			updated_at = now()
		RETURNING version`, s.ID, data,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("saving scene %s: %w", s.ID, err)
	}
	return version, nil
}

func (r *PostgresSceneRepo) Load(ctx context.Context, id string) (*scene.Scene, error) {
	var (
		version   int64
		data      []byte
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT version, payload, updated_at FROM spawn_scenes WHERE scene_id = $1`, id,
	).Scan(&version, &data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading scene %s: %w", id, err)
	}

	sc, err := r.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	sc.Version = version
	sc.UpdatedAt = updatedAt.UTC()
	return sc, nil
}

func (r *PostgresSceneRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM spawn_scenes WHERE scene_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting scene %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSceneNotFound
	}
	return nil
}

func (r *PostgresSceneRepo) List(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT scene_id FROM spawn_scenes ORDER BY scene_id`)
	if err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	return ids, nil
}

// Close закрывает пул соединений
func (r *PostgresSceneRepo) Close() error {
	r.pool.Close()
	r.codec.Close()
	return nil
}

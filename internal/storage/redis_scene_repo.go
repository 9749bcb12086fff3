package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/go-redis/redis/v8"
)

// RedisSceneRepo хранит сцены в Redis: сжатое тело сцены по ключу
// <prefix>scene:<id>, счётчик версий <prefix>ver:<id> и множество ID <prefix>ids.
type RedisSceneRepo struct {
	client    *redis.Client
	codec     *SceneCodec
	keyPrefix string
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "spawn:",
	}
}

// NewRedisSceneRepo подключается к Redis и проверяет соединение
func NewRedisSceneRepo(config *RedisConfig) (*RedisSceneRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.Addr == "" {
		config.Addr = DefaultRedisConfig().Addr
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	codec, err := NewSceneCodec()
	if err != nil {
		client.Close()
		return nil, err
	}

	logging.GetStorageLogger().Info("🔴 Connected to Redis at %s", config.Addr)
	return &RedisSceneRepo{client: client, codec: codec, keyPrefix: config.KeyPrefix}, nil
}

func (r *RedisSceneRepo) sceneKey(id string) string   { return r.keyPrefix + "scene:" + id }
func (r *RedisSceneRepo) versionKey(id string) string { return r.keyPrefix + "ver:" + id }
func (r *RedisSceneRepo) idsKey() string              { return r.keyPrefix + "ids" }

// redisSaveAttempts - сколько раз Save повторяет транзакцию при конфликте WATCH
const redisSaveAttempts = 16

// Save читает счётчик версий под WATCH и записывает новую версию, тело сцены
// и ID одной транзакцией MULTI. Если ключи сцены изменились между чтением и
// EXEC, транзакция повторяется.
func (r *RedisSceneRepo) Save(ctx context.Context, s *scene.Scene) (int64, error) {
	if err := checkSaveable(s); err != nil {
		return 0, err
	}

	var version int64
	txf := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, r.versionKey(s.ID)).Int64()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("redis get version: %w", err)
		}

		stored := s.Clone()
		stored.Version = prev + 1
		stored.UpdatedAt = time.Now().UTC()

		data, err := r.codec.Encode(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.versionKey(s.ID), stored.Version, 0)
			pipe.Set(ctx, r.sceneKey(s.ID), data, 0)
			pipe.SAdd(ctx, r.idsKey(), s.ID)
			return nil
		})
		if err == nil {
			version = stored.Version
		}
		return err
	}

	for attempt := 0; attempt < redisSaveAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, r.versionKey(s.ID), r.sceneKey(s.ID))
		if err == nil {
			return version, nil
		}
		if err != redis.TxFailedErr {
			return 0, fmt.Errorf("redis save scene %s: %w", s.ID, err)
		}
	}
	return 0, fmt.Errorf("redis save scene %s: too many concurrent writers", s.ID)
}

// Load читает сцену
func (r *RedisSceneRepo) Load(ctx context.Context, id string) (*scene.Scene, error) {
	data, err := r.client.Get(ctx, r.sceneKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSceneNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get scene %s: %w", id, err)
	}
	return r.codec.Decode(data)
}

// Delete удаляет сцену и её счётчик версий
func (r *RedisSceneRepo) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.sceneKey(id))
		pipe.Del(ctx, r.versionKey(id))
		pipe.SRem(ctx, r.idsKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete scene %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrSceneNotFound
	}
	return nil
}

// List возвращает отсортированные ID из множества сцен
func (r *RedisSceneRepo) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list scenes: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close закрывает соединение
func (r *RedisSceneRepo) Close() error {
	r.codec.Close()
	return r.client.Close()
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/dgraph-io/badger/v3"
)

const badgerScenePrefix = "scene:"

// BadgerSceneRepo хранит сцены во встроенной BadgerDB в сжатом виде
type BadgerSceneRepo struct {
	db      *badger.DB
	dbPath  string
	codec   *SceneCodec
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerSceneRepo открывает (или создаёт) базу в dataPath/scenes
func NewBadgerSceneRepo(dataPath string) (*BadgerSceneRepo, error) {
	if dataPath == "" {
		dataPath = "data"
	}
	dbPath := filepath.Join(dataPath, "scenes")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	codec, err := NewSceneCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BadgerSceneRepo{
		db:      db,
		dbPath:  dbPath,
		codec:   codec,
		isReady: true,
	}, nil
}

func sceneKey(id string) []byte {
	return []byte(badgerScenePrefix + id)
}

func (r *BadgerSceneRepo) ready() error {
	if !r.isReady {
		return errors.New("badger scene repo is closed")
	}
	return nil
}

// Save сохраняет сцену, увеличивая версию в той же транзакции
func (r *BadgerSceneRepo) Save(ctx context.Context, s *scene.Scene) (int64, error) {
	if err := checkSaveable(s); err != nil {
		return 0, err
	}
	if err := ctxDone(ctx); err != nil {
		return 0, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return 0, err
	}

	stored := s.Clone()
	err := r.db.Update(func(txn *badger.Txn) error {
		stored.Version = 1
		item, err := txn.Get(sceneKey(s.ID))
		switch {
		case err == nil:
			prev, err := r.decodeItem(item)
			if err != nil {
				return err
			}
			stored.Version = prev.Version + 1
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		stored.UpdatedAt = time.Now().UTC()
		data, err := r.codec.Encode(stored)
		if err != nil {
			return err
		}
		return txn.Set(sceneKey(s.ID), data)
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка сохранения сцены %s: %w", s.ID, err)
	}
	return stored.Version, nil
}

func (r *BadgerSceneRepo) decodeItem(item *badger.Item) (*scene.Scene, error) {
	var s *scene.Scene
	err := item.Value(func(val []byte) error {
		var err error
		s, err = r.codec.Decode(val)
		return err
	})
	return s, err
}

// Load загружает сцену
func (r *BadgerSceneRepo) Load(ctx context.Context, id string) (*scene.Scene, error) {
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	var s *scene.Scene
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sceneKey(id))
		if err != nil {
			return err
		}
		s, err = r.decodeItem(item)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки сцены %s: %w", id, err)
	}
	return s, nil
}

// Delete удаляет сцену
func (r *BadgerSceneRepo) Delete(ctx context.Context, id string) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sceneKey(id)); err != nil {
			return err
		}
		return txn.Delete(sceneKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSceneNotFound
	}
	return err
}

// List перебирает ключи с префиксом сцен
func (r *BadgerSceneRepo) List(ctx context.Context) ([]string, error) {
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	var ids []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerScenePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), badgerScenePrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Size возвращает размер LSM и vlog в байтах
func (r *BadgerSceneRepo) Size() (lsm, vlog int64) {
	return r.db.Size()
}

// Close закрывает базу
func (r *BadgerSceneRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}
	r.isReady = false
	r.codec.Close()
	return r.db.Close()
}


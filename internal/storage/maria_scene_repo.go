package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/annel0/spawnsvc/internal/scene"
	_ "github.com/go-sql-driver/mysql"
)

// MariaSceneRepo реализует SceneRepo для базы данных MariaDB/MySQL.
// Сцена хранится сжатым блобом в таблице spawn_scenes.
type MariaSceneRepo struct {
	db    *sql.DB
	codec *SceneCodec
}

// NewMariaSceneRepo создает новый репозиторий сцен для MariaDB.
// Автоматически создает таблицу, если она не существует.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname?parseTime=true)
func NewMariaSceneRepo(dsn string) (*MariaSceneRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	codec, err := NewSceneCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	repo := &MariaSceneRepo{db: db, codec: codec}
	if err := repo.createTable(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return repo, nil
}

// createTable создает таблицу spawn_scenes, если она не существует.
func (r *MariaSceneRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS spawn_scenes (
			scene_id   VARCHAR(128) PRIMARY KEY,
			version    BIGINT       NOT NULL,
			payload    LONGBLOB     NOT NULL,
			updated_at TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE    CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы spawn_scenes: %w", err)
	}
	return nil
}

// Save сохраняет сцену. Версия читается под блокировкой строки (SELECT ... FOR UPDATE).
func (r *MariaSceneRepo) Save(ctx context.Context, s *scene.Scene) (int64, error) {
	if err := checkSaveable(s); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	var prev int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM spawn_scenes WHERE scene_id = ? FOR UPDATE`, s.ID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("ошибка чтения версии сцены %s: %w", s.ID, err)
	}

	stored := s.Clone()
	stored.Version = prev + 1
	stored.UpdatedAt = time.Now().UTC()

	data, err := r.codec.Encode(stored)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO spawn_scenes (scene_id, version, payload)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			version = VALUES(version),
			payload = VALUES(payload),
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.ExecContext(ctx, query, s.ID, stored.Version, data); err != nil {
		return 0, fmt.Errorf("ошибка сохранения сцены %s: %w", s.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return stored.Version, nil
}

// Load загружает сцену из базы данных
func (r *MariaSceneRepo) Load(ctx context.Context, id string) (*scene.Scene, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM spawn_scenes WHERE scene_id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки сцены %s: %w", id, err)
	}
	return r.codec.Decode(data)
}

// Delete удаляет сцену
func (r *MariaSceneRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spawn_scenes WHERE scene_id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления сцены %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSceneNotFound
	}
	return nil
}

// List возвращает ID сцен по алфавиту
func (r *MariaSceneRepo) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT scene_id FROM spawn_scenes ORDER BY scene_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сцен: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close закрывает соединение с базой данных
func (r *MariaSceneRepo) Close() error {
	r.codec.Close()
	return r.db.Close()
}

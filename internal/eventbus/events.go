package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/spawnsvc/internal/vec"
)

// Типы событий сервиса
const (
	EventSpawnSelected = "SpawnSelected"
	EventSceneUpdated  = "SceneUpdated"
	EventSceneDeleted  = "SceneDeleted"
	EventPlayerJoined  = "PlayerJoined"
	EventPlayerLeft    = "PlayerLeft"
)

// SpawnSelected публикуется после каждого выбора точки появления,
// в том числе когда точка не найдена (PointID пустой).
type SpawnSelected struct {
	SceneID      string         `json:"scene_id"`
	SceneVersion int64          `json:"scene_version"`
	PlayerID     string         `json:"player_id,omitempty"`
	Tag          string         `json:"tag,omitempty"`
	Outcome      string         `json:"outcome"`
	Skipped      int            `json:"skipped,omitempty"`
	PointID      string         `json:"point_id,omitempty"`
	Position     *vec.Vec3Float `json:"position,omitempty"`
}

// SceneChanged публикуется при сохранении и удалении сцены
type SceneChanged struct {
	SceneID string `json:"scene_id"`
	Version int64  `json:"version,omitempty"`
}

// PlayerChanged публикуется при входе и выходе игрока
type PlayerChanged struct {
	PlayerID string `json:"player_id"`
	Index    int    `json:"index"`
	Local    bool   `json:"local,omitempty"`
}

// NewJSONEnvelope сериализует полезную нагрузку в JSON и упаковывает в конверт
func NewJSONEnvelope(source, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return NewEnvelope(source, eventType, data), nil
}

// DecodePayload разбирает JSON полезной нагрузки события
func DecodePayload[T any](ev *Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", ev.EventType, err)
	}
	return v, nil
}

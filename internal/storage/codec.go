package storage

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/klauspost/compress/zstd"
)

// SceneCodec кодирует сцены в JSON и сжимает их zstd.
// EncodeAll/DecodeAll безопасны для одновременного вызова.
type SceneCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewSceneCodec создаёт кодек
func NewSceneCodec() (*SceneCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &SceneCodec{enc: enc, dec: dec}, nil
}

// Encode сериализует сцену
func (c *SceneCodec) Encode(s *scene.Scene) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal scene %s: %w", s.ID, err)
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode восстанавливает сцену
func (c *SceneCodec) Decode(data []byte) (*scene.Scene, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	var s scene.Scene
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal scene: %w", err)
	}
	return &s, nil
}

// Close освобождает ресурсы кодека
func (c *SceneCodec) Close() {
	c.enc.Close()
	c.dec.Close()
}

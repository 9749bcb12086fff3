package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/annel0/spawnsvc/internal/eventbus"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer     = 64
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamEvent - событие шины в виде для websocket клиента
type StreamEvent struct {
	ID            string          `json:"id,omitempty"`
	Type          string          `json:"type"`
	Source        string          `json:"source,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// StreamSubscribed - первое сообщение потока, после него события не теряются
const StreamSubscribed = "Subscribed"

func toStreamEvent(ev *eventbus.Envelope) StreamEvent {
	return StreamEvent{
		ID:            ev.ID,
		Type:          ev.EventType,
		Source:        ev.Source,
		Timestamp:     ev.Timestamp,
		CorrelationID: ev.CorrelationID,
		Payload:       json.RawMessage(ev.Payload),
	}
}

// eventForScene проверяет scene_id полезной нагрузки
func eventForScene(ev *eventbus.Envelope, sceneID string) bool {
	var p struct {
		SceneID string `json:"scene_id"`
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return false
	}
	return p.SceneID == sceneID
}

// handleEventStream транслирует события шины в websocket.
// Параметры: types=SpawnSelected,SceneUpdated и scene=<id>.
func (rs *RestServer) handleEventStream(c *gin.Context) {
	if rs.bus == nil {
		fail(c, http.StatusServiceUnavailable, "Шина событий не настроена")
		return
	}

	var filter eventbus.Filter
	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter.Types = append(filter.Types, t)
		}
	}
	sceneID := c.Query("scene")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rs.log.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(rs.streamCtx)
	defer cancel()

	events := make(chan *eventbus.Envelope, streamBuffer)
	sub, err := rs.bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		if sceneID != "" && !eventForScene(ev, sceneID) {
			return
		}
		select {
		case events <- ev:
		default:
			rs.log.Debug("Поток событий переполнен, событие %s пропущено", ev.ID)
		}
	})
	if err != nil {
		message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed")
		conn.WriteMessage(websocket.CloseMessage, message)
		return
	}
	defer sub.Unsubscribe()

	if !writeStreamJSON(conn, StreamEvent{Type: StreamSubscribed, Timestamp: time.Now().UTC()}) {
		return
	}

	// Читаем только для обнаружения закрытия соединения клиентом
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if rs.streamCtx.Err() != nil {
				message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(streamWriteWait))
			}
			return
		case ev := <-events:
			if !writeStreamJSON(conn, toStreamEvent(ev)) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeStreamJSON(conn *websocket.Conn, v StreamEvent) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}

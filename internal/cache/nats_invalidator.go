package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSInvalidator реализует Invalidator через NATS Pub/Sub.
// Сообщения собственного узла отбрасываются по NodeID.
type NATSInvalidator struct {
	conn    *nats.Conn
	subject string
	nodeID  string

	subMu        sync.Mutex
	subscription *nats.Subscription
	handler      InvalidationHandler

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidationMessage - сообщение об инвалидации ключа
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// NewNATSInvalidator подключается к NATS. Пустой nodeID заменяется случайным.
func NewNATSInvalidator(url, subject, nodeID string) (*NATSInvalidator, error) {
	if subject == "" {
		subject = DefaultConfig().Subject
	}
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	opts := []nats.Option{
		nats.Name("spawnsvc-cache-" + nodeID),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logging.Info("NATS invalidator initialized: %s (subject: %s, node: %s)", url, subject, nodeID)
	return &NATSInvalidator{
		conn:    conn,
		subject: subject,
		nodeID:  nodeID,
		stopCh:  make(chan struct{}),
	}, nil
}

// PublishInvalidation отправляет уведомление об инвалидации ключа
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	data, err := encodeInvalidation(key, n.nodeID, time.Now())
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return err
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to flush invalidation: %w", err)
	}

	atomic.AddInt64(&n.publishedCount, 1)
	logging.Debug("Published invalidation for key: %s", key)
	return nil
}

// SubscribeInvalidations подписывается на уведомления; подписка снимается
// при отмене ctx или Close.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	sub, err := n.conn.Subscribe(n.subject, n.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub
	n.handler = handler

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()

	logging.Info("Subscribed to cache invalidations on subject: %s", n.subject)
	return nil
}

// Close снимает подписку и закрывает соединение
func (n *NATSInvalidator) Close() error {
	n.closeOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
		n.conn.Close()
		logging.Info("NATS invalidator closed")
	})
	return nil
}

// Stats возвращает счётчики publish/receive/errors
func (n *NATSInvalidator) Stats() (published, received, errors int64) {
	return atomic.LoadInt64(&n.publishedCount),
		atomic.LoadInt64(&n.receivedCount),
		atomic.LoadInt64(&n.errorsCount)
}

func (n *NATSInvalidator) handleMessage(msg *nats.Msg) {
	atomic.AddInt64(&n.receivedCount, 1)

	key, ok, err := decodeInvalidation(msg.Data, n.nodeID)
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}
	if !ok {
		return
	}

	n.subMu.Lock()
	handler := n.handler
	n.subMu.Unlock()

	if handler == nil {
		return
	}
	if err := handler(key); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Invalidation handler failed for key %s: %v", key, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil {
		logging.Error("Failed to unsubscribe from invalidations: %v", err)
	}
	n.subscription = nil
	n.handler = nil
}

func encodeInvalidation(key, nodeID string, at time.Time) ([]byte, error) {
	data, err := json.Marshal(InvalidationMessage{Key: key, Timestamp: at, NodeID: nodeID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invalidation message: %w", err)
	}
	return data, nil
}

// decodeInvalidation возвращает ключ и false для сообщений узла selfID
func decodeInvalidation(data []byte, selfID string) (string, bool, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", false, err
	}
	if msg.NodeID == selfID {
		return msg.Key, false, nil
	}
	return msg.Key, true, nil
}

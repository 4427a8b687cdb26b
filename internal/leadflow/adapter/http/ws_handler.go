package http

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/usecase"
	"leadflow/internal/shared/contextkeys"
	"leadflow/internal/shared/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// WebSocketHandler accepts project observers and registers them for broadcasts.
type WebSocketHandler struct {
	realtimeUC   usecase.RealtimeUsecase
	path         string
	writeTimeout time.Duration
	log          logger.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler serving path/:projectId.
func NewWebSocketHandler(rtuc usecase.RealtimeUsecase, path string, writeTimeout time.Duration, log logger.Logger) *WebSocketHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &WebSocketHandler{
		realtimeUC:   rtuc,
		path:         strings.TrimSuffix(path, "/"),
		writeTimeout: writeTimeout,
		log:          log.WithComponent("websocket"),
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(router fiber.Router) {
	router.Use(h.path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get(h.path+"/:projectId", websocket.New(h.handleConnection))
}

func (h *WebSocketHandler) handleConnection(conn *websocket.Conn) {
	projectID := conn.Params("projectId")
	ctx, cancel := context.WithCancel(contextkeys.With(context.Background(), contextkeys.ProjectIDKey, projectID))
	defer cancel()

	observer := &socketObserver{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: h.writeTimeout,
	}

	if err := h.realtimeUC.Connect(ctx, projectID, observer); err != nil {
		observer.close()
		return
	}
	// The connection is pooled once this handler returns, so the observer
	// must stop writing before then.
	defer func() {
		h.realtimeUC.Disconnect(ctx, projectID, observer)
		observer.close()
	}()

	// Observers do not send anything meaningful; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.WithContext(ctx).WithFields(map[string]interface{}{
					"observer_id": observer.id,
				}).Warnf("WebSocket read error: %v", err)
			}
			return
		}
	}
}

// errObserverClosed is returned by Send after the connection handler exited.
var errObserverClosed = errors.New("websocket observer closed")

// socketObserver adapts a websocket connection to usecase.Observer. Writes
// are serialized because broadcasts for one project may run concurrently.
type socketObserver struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (o *socketObserver) ID() string { return o.id }

func (o *socketObserver) Send(ctx context.Context, event interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errObserverClosed
	}
	if o.writeTimeout > 0 {
		if err := o.conn.SetWriteDeadline(time.Now().Add(o.writeTimeout)); err != nil {
			return err
		}
	}
	return o.conn.WriteJSON(event)
}

// close waits for an in-flight Send and makes every later one fail.
func (o *socketObserver) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// Handshake sends the connected frame.
func (o *socketObserver) Handshake(ctx context.Context, projectID string) error {
	return o.Send(ctx, model.ConnectedMessage{
		Type:       model.EventConnected,
		ProjectID:  projectID,
		ObserverID: o.id,
	})
}

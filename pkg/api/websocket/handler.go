package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aescanero/stepchain/internal/application/orchestrator"
	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// MessageTypeSnapshot is the type of the first message on a stream
	MessageTypeSnapshot = "execution.snapshot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ExecutionReader looks up execution records
type ExecutionReader interface {
	GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error)
}

// Snapshot is the execution state sent when a client connects
type Snapshot struct {
	Type      string                  `json:"type"`
	Execution *domain.ExecutionRecord `json:"execution"`
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus   ports.EventBus
	executions ExecutionReader
	logger     *zap.Logger
	bufferSize int
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, executions ExecutionReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		eventBus:   eventBus,
		executions: executions,
		logger:     logger,
		bufferSize: 64,
	}
}

// HandleExecutionStream streams the events of one execution
func (h *Handler) HandleExecutionStream(c *gin.Context) {
	executionID := c.Param("id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if _, err := h.executions.GetExecution(ctx, executionID); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": gin.H{"code": http.StatusText(code), "message": err.Error()}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("execution_id", executionID),
		zap.String("client", c.ClientIP()))

	// subscribe before the snapshot so no event falls between the two
	eventChan := make(chan domain.Event, h.bufferSize)
	if err := h.eventBus.Subscribe(ctx, orchestrator.EventsTopic, h.forward(executionID, eventChan)); err != nil {
		h.logger.Error("failed to subscribe to events",
			zap.String("execution_id", executionID),
			zap.Error(err))
		h.closeWith(conn, websocket.CloseInternalServerErr, "event stream unavailable")
		return
	}

	rec, err := h.executions.GetExecution(ctx, executionID)
	if err != nil {
		h.closeWith(conn, websocket.CloseInternalServerErr, "execution lookup failed")
		return
	}
	if err := h.write(conn, Snapshot{Type: MessageTypeSnapshot, Execution: rec}); err != nil {
		return
	}
	if rec.Status.IsTerminal() {
		h.closeWith(conn, websocket.CloseNormalClosure, string(rec.Status))
		return
	}

	// the read loop notices client disconnects
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case event := <-eventChan:
			if err := h.write(conn, event); err != nil {
				return
			}
			if event.Type == domain.EventTypeWorkflowCompleted || event.Type == domain.EventTypeWorkflowFailed {
				h.closeWith(conn, websocket.CloseNormalClosure, string(event.Type))
				return
			}
		}
	}
}

// forward passes events of one execution to ch without blocking the bus
func (h *Handler) forward(executionID string, ch chan<- domain.Event) ports.EventHandler {
	return func(ctx context.Context, event domain.Event) error {
		if event.ExecutionID != executionID {
			return nil
		}

		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}
}

func (h *Handler) write(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		h.logger.Debug("failed to write message", zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

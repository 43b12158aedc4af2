package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/delivery"
	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscriber подписка на новые сообщения переписки
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID uuid.UUID, onMessage delivery.Handler) (*delivery.Subscription, error)
}

const (
	DefaultHeartbeat = 25 * time.Second
	streamBuffer     = 16
	backlogPage      = service.MaxPageSize
)

// StreamHandler отдаёт сообщения переписки как Server-Sent Events
type StreamHandler struct {
	conversations Conversations
	subscriber    Subscriber
	heartbeat     time.Duration
}

func NewStreamHandler(conversations Conversations, subscriber Subscriber, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		conversations: conversations,
		subscriber:    subscriber,
		heartbeat:     heartbeat,
	}
}

// Stream: каждое событие "message" несёт сообщение в JSON, id события равен seq.
// При переподключении с Last-Event-ID сначала отдаются все сообщения после него из хранилища.
// Клиент отбрасывает повторы по id сообщения.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := loggerFrom(ctx)

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.conversations.Authorize(ctx, id, actorFrom(ctx)); err != nil {
		writeError(w, r, err)
		return
	}
	lastSeq, resume, err := parseLastEventID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make(chan *model.Message, streamBuffer)
	// handler блокируется, пока клиент не заберёт сообщение: медленного клиента брокер догонит из хранилища
	sub, err := h.subscriber.Subscribe(ctx, id, func(message *model.Message) {
		select {
		case out <- message:
		case <-ctx.Done():
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer sub.Unsubscribe()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Warn("stream flush unsupported", zap.Error(err))
		return
	}

	// подписка оформлена до чтения хвоста, поэтому между ними ничего не теряется
	if resume {
		for {
			backlog, err := h.conversations.MessagesAfter(ctx, id, lastSeq, backlogPage)
			if err != nil {
				logger.Warn("stream backlog read failed", zap.Error(err))
				return
			}
			for _, message := range backlog {
				if err := writeEvent(w, message); err != nil {
					return
				}
				lastSeq = message.Seq
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if len(backlog) < backlogPage {
				break
			}
		}
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case message := <-out:
			// повторы после пересинхронизации брокера и уже отданный хвост
			if message.Seq <= lastSeq {
				continue
			}
			lastSeq = message.Seq
			if err := writeEvent(w, message); err != nil {
				logger.Debug("stream client gone", zap.Error(err))
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, message *model.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", message.Seq, data)
	return err
}

// parseLastEventID читает seq из заголовка Last-Event-ID; resume == false, если заголовка нет
func parseLastEventID(r *http.Request) (seq int64, resume bool, err error) {
	raw := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if raw == "" {
		return 0, false, nil
	}
	seq, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0, false, errdefs.Invalid("Last-Event-ID must be a message seq")
	}
	return seq, true, nil
}

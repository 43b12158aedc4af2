package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/controller/httpapi"
	"github.com/Freeeeeet/engagement_service/internal/delivery"
	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/repository/memory"
	"github.com/Freeeeeet/engagement_service/internal/service"
	"github.com/Freeeeeet/engagement_service/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	student = model.Actor{UserID: "student-1", DisplayName: "Alice", Role: model.RoleStudent}
	teacher = model.Actor{UserID: "teacher-1", DisplayName: "Mr. Brown", Role: model.RoleTeacher}
	admin   = model.Actor{UserID: "admin-1", DisplayName: "Root", Role: model.RoleSuperAdmin}
)

// flakyConversations теряет соединение при отправке сообщения
type flakyConversations struct {
	service.ConversationRepository
}

func (f flakyConversations) AppendMessage(context.Context, *model.Message) (*model.Message, error) {
	return nil, errdefs.Unavailable(errors.New("connection reset by peer"))
}

type api struct {
	handler http.Handler
}

func newAPI(t *testing.T, flakySend bool) *api {
	t.Helper()

	logger := zap.NewNop()
	store := memory.New()
	v := validation.New()

	var conversationRepo service.ConversationRepository = store.Conversations
	if flakySend {
		conversationRepo = flakyConversations{ConversationRepository: store.Conversations}
	}

	registry := service.NewEngagementRegistry(store.Requests, store.Engagements, nil, logger)
	access := service.NewAccessService(store.Access, nil, nil, logger)

	// брокер подключается к событиям после создания сервиса переписок
	var broker *delivery.Broker
	publisher := publisherFunc(func(ctx context.Context, event model.Event) {
		if broker != nil {
			_ = broker.Handle(ctx, event)
		}
	})
	conversations := service.NewConversationService(conversationRepo, publisher, v, nil, logger)
	broker = delivery.NewBroker(conversations, logger)
	t.Cleanup(broker.Close)

	policy := service.RetryPolicy{Base: time.Millisecond, MaxRetries: 1, MaxDelay: time.Millisecond}
	coordinator := service.NewCoordinator(registry, access, conversations, publisher, v, policy, nil, logger)

	stream := httpapi.NewStreamHandler(conversations, broker, time.Second)
	return &api{handler: httpapi.NewRouter(httpapi.Handlers{
		Requests:      httpapi.NewRequestHandler(coordinator, registry),
		Engagements:   httpapi.NewEngagementHandler(coordinator, registry),
		Access:        httpapi.NewAccessHandler(access),
		Conversations: httpapi.NewConversationHandler(conversations, stream),
	}, logger)}
}

type publisherFunc func(ctx context.Context, event model.Event)

func (f publisherFunc) Publish(ctx context.Context, event model.Event) { f(ctx, event) }

func newRequest(method, path string, actor *model.Actor, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	if actor != nil {
		r.Header.Set(httpapi.HeaderUserID, actor.UserID)
		r.Header.Set(httpapi.HeaderUserName, actor.DisplayName)
		r.Header.Set(httpapi.HeaderUserRole, string(actor.Role))
	}
	return r
}

func (a *api) do(t *testing.T, method, path string, actor *model.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, newRequest(method, path, actor, body))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func submitBody() map[string]any {
	return map[string]any{
		"student_id":      student.UserID,
		"student_profile": map[string]string{"name": "Alice", "email": "alice@example.com"},
		"teacher_id":      teacher.UserID,
		"teacher_name":    "Mr. Brown",
		"plan":            "Standard",
		"subject":         "Physics",
		"availability":    []string{"Mon 18:00"},
	}
}

// approved создаёт и одобряет заявку, возвращает результат одобрения
func (a *api) approved(t *testing.T) model.ApprovalResult {
	t.Helper()
	w := a.do(t, http.MethodPost, "/requests", &student, submitBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	request := decode[model.EngagementRequest](t, w)

	w = a.do(t, http.MethodPost, "/requests/"+request.ID.String()+"/approve", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[model.ApprovalResult](t, w)
}

func TestHealth(t *testing.T) {
	w := newAPI(t, false).do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httpapi.HeaderTraceID))
}

func TestIdentity(t *testing.T) {
	a := newAPI(t, false)

	w := a.do(t, http.MethodGet, "/requests", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	stranger := model.Actor{UserID: "u-1", Role: "guest"}
	w = a.do(t, http.MethodGet, "/requests", &stranger, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequests(t *testing.T) {
	t.Run("ApproveFlow", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)

		w := a.do(t, http.MethodGet, "/access/check?teacher_id="+teacher.UserID, &student, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[map[string]bool](t, w)["has_access"])

		w = a.do(t, http.MethodGet, "/engagements/"+result.EngagementID.String(), &teacher, nil)
		require.Equal(t, http.StatusOK, w.Code)
		engagement := decode[model.Engagement](t, w)
		assert.Equal(t, int64(20000), engagement.MonthlyAmount)

		// повторное одобрение возвращает те же идентификаторы
		w = a.do(t, http.MethodPost, "/requests/"+result.RequestID.String()+"/approve", &admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		again := decode[model.ApprovalResult](t, w)
		assert.True(t, again.AlreadyProcessed)
		assert.Equal(t, result.ConversationID, again.ConversationID)
	})

	t.Run("Validation", func(t *testing.T) {
		a := newAPI(t, false)
		body := submitBody()
		body["plan"] = "Gold"

		w := a.do(t, http.MethodPost, "/requests", &student, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"plan"`)
	})

	t.Run("UnknownField", func(t *testing.T) {
		a := newAPI(t, false)
		body := submitBody()
		body["discount"] = 100

		w := a.do(t, http.MethodPost, "/requests", &student, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("DuplicatePending", func(t *testing.T) {
		a := newAPI(t, false)
		require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/requests", &student, submitBody()).Code)

		w := a.do(t, http.MethodPost, "/requests", &student, submitBody())
		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	})

	t.Run("RejectRequiresReason", func(t *testing.T) {
		a := newAPI(t, false)
		request := decode[model.EngagementRequest](t, a.do(t, http.MethodPost, "/requests", &student, submitBody()))

		w := a.do(t, http.MethodPost, "/requests/"+request.ID.String()+"/reject", &admin, map[string]string{"reason": " "})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = a.do(t, http.MethodPost, "/requests/"+request.ID.String()+"/reject", &admin, map[string]string{"reason": "no slots"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.RequestStatusRejected, decode[model.EngagementRequest](t, w).Status)

		// одобрение после отклонения
		w = a.do(t, http.MethodPost, "/requests/"+request.ID.String()+"/approve", &admin, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "already processed")
	})

	t.Run("StudentCannotApprove", func(t *testing.T) {
		a := newAPI(t, false)
		request := decode[model.EngagementRequest](t, a.do(t, http.MethodPost, "/requests", &student, submitBody()))

		w := a.do(t, http.MethodPost, "/requests/"+request.ID.String()+"/approve", &student, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("ForeignRequestHidden", func(t *testing.T) {
		a := newAPI(t, false)
		request := decode[model.EngagementRequest](t, a.do(t, http.MethodPost, "/requests", &student, submitBody()))
		other := model.Actor{UserID: "student-2", Role: model.RoleStudent}

		w := a.do(t, http.MethodGet, "/requests/"+request.ID.String(), &other, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = a.do(t, http.MethodGet, "/requests/not-a-uuid", &student, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CancelRevokesAccess", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)

		w := a.do(t, http.MethodPost, "/engagements/"+result.EngagementID.String()+"/cancel", &student, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode[map[string]any](t, w)
		assert.Equal(t, true, body["engagement_cancelled"])

		w = a.do(t, http.MethodGet, "/access/check?teacher_id="+teacher.UserID, &student, nil)
		assert.False(t, decode[map[string]bool](t, w)["has_access"])
	})
}

func TestEngagements(t *testing.T) {
	t.Run("BillingAdminOnly", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		path := "/engagements/" + result.EngagementID.String() + "/billing/advance"

		w := a.do(t, http.MethodGet, "/engagements/"+result.EngagementID.String(), &admin, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		period := map[string]time.Time{"expected_next_billing_date": decode[model.Engagement](t, w).NextBillingDate}

		assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, path, &teacher, period).Code)

		w = a.do(t, http.MethodPost, path, &admin, period)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, true, decode[map[string]any](t, w)["advanced"])

		// повтор за тот же период ничего не сдвигает
		w = a.do(t, http.MethodPost, path, &admin, period)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decode[map[string]any](t, w)["advanced"])
	})

	t.Run("Error_BillingWithoutPeriod", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		path := "/engagements/" + result.EngagementID.String() + "/billing/advance"

		w := a.do(t, http.MethodPost, path, &admin, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("SuspendResume", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		path := "/engagements/" + result.EngagementID.String() + "/status"

		w := a.do(t, http.MethodPut, path, &admin, map[string]string{"status": "suspended"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, model.EngagementStatusSuspended, decode[model.Engagement](t, w).Status)

		w = a.do(t, http.MethodPut, path, &admin, map[string]string{"status": "suspended"})
		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	})
}

func TestConversations(t *testing.T) {
	t.Run("SendAndRead", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		base := "/conversations/" + result.ConversationID.String()

		w := a.do(t, http.MethodPost, base+"/messages", &student, map[string]string{"content": "Hello!"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, int64(1), decode[model.Message](t, w).Seq)

		w = a.do(t, http.MethodGet, "/conversations/unread", &teacher, nil)
		assert.Equal(t, 1, decode[map[string]int](t, w)["unread"])

		w = a.do(t, http.MethodPost, base+"/read", &teacher, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(1), decode[map[string]int64](t, w)["marked"])

		w = a.do(t, http.MethodGet, "/conversations/unread", &teacher, nil)
		assert.Equal(t, 0, decode[map[string]int](t, w)["unread"])

		w = a.do(t, http.MethodGet, base+"/messages?limit=10", &teacher, nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[model.MessagePage](t, w)
		require.Len(t, page.Messages, 1)
		assert.True(t, page.Messages[0].Read)
	})

	t.Run("Pagination", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		base := "/conversations/" + result.ConversationID.String()
		for _, text := range []string{"one", "two", "three"} {
			require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, base+"/messages", &teacher, map[string]string{"content": text}).Code)
		}

		page := decode[model.MessagePage](t, a.do(t, http.MethodGet, base+"/messages?limit=2", &student, nil))
		require.Len(t, page.Messages, 2)
		assert.Equal(t, "two", page.Messages[0].Content)
		require.NotNil(t, page.NextBefore)

		older := decode[model.MessagePage](t, a.do(t, http.MethodGet, base+"/messages?limit=2&before=2", &student, nil))
		require.Len(t, older.Messages, 1)
		assert.Equal(t, "one", older.Messages[0].Content)

		assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, base+"/messages?limit=abc", &student, nil).Code)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		other := model.Actor{UserID: "student-2", Role: model.RoleStudent}

		w := a.do(t, http.MethodPost, "/conversations/"+result.ConversationID.String()+"/messages", &other, map[string]string{"content": "hi"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)

		w := a.do(t, http.MethodPost, "/conversations/"+result.ConversationID.String()+"/messages", &student, map[string]string{"content": "  \n"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("FailedSendEchoesContent", func(t *testing.T) {
		a := newAPI(t, true)
		result := a.approved(t)

		w := a.do(t, http.MethodPost, "/conversations/"+result.ConversationID.String()+"/messages", &student, map[string]string{"content": "draft text"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "message not delivered, retry", body["error"])
		assert.Equal(t, "draft text", body["content"])
		assert.Equal(t, true, body["retry"])
	})
}

// openStream подключается к SSE-потоку переписки от имени учителя и читает события message
func openStream(t *testing.T, a *api, path, lastEventID string) func() model.Message {
	t.Helper()

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(httpapi.HeaderUserID, teacher.UserID)
	req.Header.Set(httpapi.HeaderUserRole, string(teacher.Role))
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	return func() model.Message {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var m model.Message
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &m))
				return m
			}
		}
	}
}

func TestStream(t *testing.T) {
	t.Run("SnapshotThenLive", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		base := "/conversations/" + result.ConversationID.String()
		require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, base+"/messages", &student, map[string]string{"content": "before"}).Code)

		nextMessage := openStream(t, a, base+"/stream", "")
		assert.Equal(t, "before", nextMessage().Content)

		require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, base+"/messages", &student, map[string]string{"content": "live"}).Code)
		live := nextMessage()
		assert.Equal(t, "live", live.Content)
		assert.Equal(t, int64(2), live.Seq)
	})

	t.Run("ResumesAfterLastEventID", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)
		base := "/conversations/" + result.ConversationID.String()
		for _, content := range []string{"first", "second", "third"} {
			require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, base+"/messages", &student, map[string]string{"content": content}).Code)
		}

		nextMessage := openStream(t, a, base+"/stream", "1")
		assert.Equal(t, int64(2), nextMessage().Seq)
		assert.Equal(t, int64(3), nextMessage().Seq)

		// снимок брокера повторяет 1..3, они не должны прийти второй раз
		require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, base+"/messages", &student, map[string]string{"content": "fourth"}).Code)
		live := nextMessage()
		assert.Equal(t, int64(4), live.Seq)
		assert.Equal(t, "fourth", live.Content)
	})

	t.Run("Error_InvalidLastEventID", func(t *testing.T) {
		a := newAPI(t, false)
		result := a.approved(t)

		req := newRequest(http.MethodGet, "/conversations/"+result.ConversationID.String()+"/stream", &teacher, nil)
		req.Header.Set("Last-Event-ID", "abc")
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

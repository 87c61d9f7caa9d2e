package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	"hirewheel/internal/messaging/hub"
	"hirewheel/internal/messaging/service"
	mongodb "hirewheel/pkg/db/mongo"
	apperrors "hirewheel/pkg/errors"
	"hirewheel/pkg/logger"
	"hirewheel/pkg/middleware"
	"hirewheel/pkg/model"
)

const testConversationID = "507f1f77bcf86cd799439033"

type mockMessagingService struct {
	authorizeFunc func(ctx context.Context, caller middleware.Caller, conversationID string) (*model.Conversation, error)
}

func (m *mockMessagingService) CreateOrGetConversation(ctx context.Context, caller middleware.Caller, otherUserID string) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockMessagingService) ListConversations(ctx context.Context, caller middleware.Caller, limit int, offset int64) ([]*model.Conversation, int64, error) {
	return nil, 0, nil
}

func (m *mockMessagingService) AuthorizeParticipant(ctx context.Context, caller middleware.Caller, conversationID string) (*model.Conversation, error) {
	if m.authorizeFunc != nil {
		return m.authorizeFunc(ctx, caller, conversationID)
	}
	return &model.Conversation{
		ID:           conversationID,
		Participants: []string{"owner-1", "driver-user-1"},
	}, nil
}

func (m *mockMessagingService) SendMessage(ctx context.Context, caller middleware.Caller, conversationID string, body string) (*model.Message, error) {
	return nil, nil
}

func (m *mockMessagingService) ListMessages(ctx context.Context, caller middleware.Caller, conversationID string, limit int, offset int64) ([]*model.Message, error) {
	return nil, nil
}

type mockMessageRepository struct {
	watchFunc func(ctx context.Context, conversationID string) (<-chan mongodb.InsertEvent, func(), error)
}

func (m *mockMessageRepository) Create(ctx context.Context, message *model.Message) error {
	return nil
}

func (m *mockMessageRepository) FindByConversation(ctx context.Context, conversationID string, limit int, offset int64) ([]*model.Message, error) {
	return nil, nil
}

func (m *mockMessageRepository) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	return 0, nil
}

func (m *mockMessageRepository) WatchConversationInserts(ctx context.Context, conversationID string) (<-chan mongodb.InsertEvent, func(), error) {
	if m.watchFunc != nil {
		return m.watchFunc(ctx, conversationID)
	}
	return nil, func() {}, apperrors.Internal("change streams unavailable", nil)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{
		Level:   "error",
		Format:  logger.FormatJSON,
		Service: "test",
	})
}

func streamRequest(ctx context.Context) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/id/"+testConversationID+"/stream", nil)
	ctx = context.WithValue(ctx, middleware.CallerKey, middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner})
	return req.WithContext(ctx)
}

func conversationParams() httprouter.Params {
	return httprouter.Params{{Key: "id", Value: testConversationID}}
}

// openStream runs the handler on its own goroutine and returns the recorder
// plus a wait function that cancels the request and blocks until the
// handler has finished writing.
func openStream(t *testing.T, h *StreamHandler) (*httptest.ResponseRecorder, func() string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	recorder := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Open(recorder, streamRequest(ctx), conversationParams())
	}()

	return recorder, func() string {
		cancel()
		wg.Wait()
		return recorder.Body.String()
	}
}

func TestOpen_HandshakeAndHubDelivery(t *testing.T) {
	deliveryHub := hub.New()
	h := NewStreamHandler(&mockMessagingService{}, deliveryHub, &mockMessageRepository{}, time.Minute, false, testLogger())

	recorder, finish := openStream(t, h)

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for deliveryHub.Subscribers(testConversationID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed to the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	deliveryHub.Publish(hub.Event{
		Type:           service.EventTypeMessage,
		ConversationID: testConversationID,
		MessageID:      "507f1f77bcf86cd799439044",
	})
	time.Sleep(50 * time.Millisecond)

	body := finish()

	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected text/event-stream content type, got %q", got)
	}
	if !strings.Contains(body, "event: handshake\n") {
		t.Errorf("expected handshake frame, got:\n%s", body)
	}
	if !strings.Contains(body, "event: message\n") {
		t.Errorf("expected message frame, got:\n%s", body)
	}
	if !strings.Contains(body, `"message_id":"507f1f77bcf86cd799439044"`) {
		t.Errorf("expected message id in frame payload, got:\n%s", body)
	}
}

func TestOpen_TeardownUnsubscribes(t *testing.T) {
	deliveryHub := hub.New()
	h := NewStreamHandler(&mockMessagingService{}, deliveryHub, &mockMessageRepository{}, time.Minute, false, testLogger())

	_, finish := openStream(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for deliveryHub.Subscribers(testConversationID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed to the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	finish()

	if got := deliveryHub.Subscribers(testConversationID); got != 0 {
		t.Errorf("expected subscription removed on disconnect, got %d", got)
	}
}

func TestOpen_KeepaliveFrames(t *testing.T) {
	deliveryHub := hub.New()
	h := NewStreamHandler(&mockMessagingService{}, deliveryHub, &mockMessageRepository{}, 20*time.Millisecond, false, testLogger())

	_, finish := openStream(t, h)
	time.Sleep(100 * time.Millisecond)
	body := finish()

	if !strings.Contains(body, "event: ping\n") {
		t.Errorf("expected at least one ping frame, got:\n%s", body)
	}
}

func TestOpen_ChangeFeedDelivery(t *testing.T) {
	deliveryHub := hub.New()
	feedEvents := make(chan mongodb.InsertEvent, 1)
	stopped := false
	messages := &mockMessageRepository{
		watchFunc: func(ctx context.Context, conversationID string) (<-chan mongodb.InsertEvent, func(), error) {
			return feedEvents, func() { stopped = true }, nil
		},
	}
	h := NewStreamHandler(&mockMessagingService{}, deliveryHub, messages, time.Minute, true, testLogger())

	_, finish := openStream(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for deliveryHub.Subscribers(testConversationID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed to the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	feedEvents <- mongodb.InsertEvent{DocumentID: "507f1f77bcf86cd799439055"}
	time.Sleep(50 * time.Millisecond)
	body := finish()

	if !strings.Contains(body, `"message_id":"507f1f77bcf86cd799439055"`) {
		t.Errorf("expected change feed message frame, got:\n%s", body)
	}
	if !stopped {
		t.Error("expected the change feed watcher to be stopped on teardown")
	}
}

func TestOpen_DegradesWhenChangeFeedUnavailable(t *testing.T) {
	deliveryHub := hub.New()
	h := NewStreamHandler(&mockMessagingService{}, deliveryHub, &mockMessageRepository{}, time.Minute, true, testLogger())

	_, finish := openStream(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for deliveryHub.Subscribers(testConversationID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream must keep serving hub events without the feed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	body := finish()
	if !strings.Contains(body, "event: handshake\n") {
		t.Errorf("expected handshake despite feed failure, got:\n%s", body)
	}
}

func TestOpen_MissingCallerUnauthorized(t *testing.T) {
	deliveryHub := hub.New()
	h := NewStreamHandler(&mockMessagingService{}, deliveryHub, &mockMessageRepository{}, time.Minute, false, testLogger())

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/id/"+testConversationID+"/stream", nil)
	h.Open(recorder, req, conversationParams())

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", recorder.Code)
	}
}

func TestOpen_StrangerGetsNotFound(t *testing.T) {
	deliveryHub := hub.New()
	svc := &mockMessagingService{
		authorizeFunc: func(ctx context.Context, caller middleware.Caller, conversationID string) (*model.Conversation, error) {
			return nil, apperrors.NotFoundWithID("Conversation", conversationID)
		},
	}
	h := NewStreamHandler(svc, deliveryHub, &mockMessageRepository{}, time.Minute, false, testLogger())

	recorder := httptest.NewRecorder()
	h.Open(recorder, streamRequest(context.Background()), conversationParams())

	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", recorder.Code)
	}
}

func TestTimeoutExempt(t *testing.T) {
	stream := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/id/abc/stream", nil)
	if !TimeoutExempt(stream) {
		t.Error("expected stream request to be exempt")
	}

	messages := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/id/abc/messages", nil)
	if TimeoutExempt(messages) {
		t.Error("expected message listing to stay under the timeout")
	}

	post := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/id/abc/stream", nil)
	if TimeoutExempt(post) {
		t.Error("expected non-GET to stay under the timeout")
	}
}

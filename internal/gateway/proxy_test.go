package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/realtime-message-gateway/internal/message"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

// registerUser creates an identity directly in the registry, the way the
// connect callback would.
func registerUser(t *testing.T, env *testEnv, id, name string) *user.User {
	t.Helper()
	u, err := env.users.Upsert(context.Background(), id, name)
	require.NoError(t, err)
	return u
}

func TestConnect(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.post(t, "/centrifugo/connect", map[string]any{
		"client":    "client-1",
		"transport": "websocket",
		"data":      map[string]string{"userId": "u1", "userName": "Alice"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody(t, rec)["result"].(map[string]any)
	assert.Equal(t, "u1", result["user"])
	assert.Equal(t, map[string]any{"name": "Alice"}, result["info"])

	// The identity is now known to the rest of the gateway.
	u, err := env.users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
}

func TestConnectMissingUserData(t *testing.T) {
	env := newTestEnv(t, "")

	bodies := []map[string]any{
		{"client": "client-1"},
		{"client": "client-1", "data": map[string]string{"userName": "Alice"}},
		{"client": "client-1", "data": map[string]string{"userId": "u1"}},
	}
	for _, body := range bodies {
		rec := env.post(t, "/centrifugo/connect", body)
		code, msg := proxyErrorOf(t, rec)
		assert.Equal(t, CodeMissingUserData, code)
		assert.Equal(t, "Missing user data", msg)
	}
}

func TestSubscribe(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")

	// Shared channels and the user's own personal channel are allowed.
	for _, ch := range []string{"chat", "chat:room-1", "user:u1"} {
		rec := env.post(t, "/centrifugo/subscribe", map[string]any{
			"client": "client-1", "user": "u1", "channel": ch,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		_, hasResult := decodeBody(t, rec)["result"]
		assert.True(t, hasResult, "channel %q should be allowed", ch)
	}
}

func TestSubscribeUnknownUser(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.post(t, "/centrifugo/subscribe", map[string]any{
		"client": "client-1", "user": "ghost", "channel": "chat",
	})
	code, msg := proxyErrorOf(t, rec)
	assert.Equal(t, CodeUserNotFound, code)
	assert.Equal(t, "User not found", msg)
}

func TestSubscribeOtherUserChannel(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")
	registerUser(t, env, "u2", "Bob")

	rec := env.post(t, "/centrifugo/subscribe", map[string]any{
		"client": "client-1", "user": "u1", "channel": "user:u2",
	})
	code, msg := proxyErrorOf(t, rec)
	assert.Equal(t, CodeInvalid, code)
	assert.Equal(t, "Cannot subscribe to other user channels", msg)
}

func TestSubscribeInvalidChannel(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")

	for _, ch := range []string{"", "chatroom", "chat:", "chat:room 1", "admin:x"} {
		rec := env.post(t, "/centrifugo/subscribe", map[string]any{
			"client": "client-1", "user": "u1", "channel": ch,
		})
		code, msg := proxyErrorOf(t, rec)
		assert.Equal(t, CodeInvalid, code, "channel %q", ch)
		assert.Equal(t, "Invalid channel", msg)
	}
}

func TestSubscribeEchoesData(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")

	rec := env.post(t, "/centrifugo/subscribe", map[string]any{
		"client": "client-1", "user": "u1", "channel": "chat",
		"data": map[string]string{"avatar": "cat"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody(t, rec)["result"].(map[string]any)
	assert.Equal(t, map[string]any{"avatar": "cat"}, result["info"])
}

func TestPublish(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")
	require.NoError(t, env.store.RegisterWorker(context.Background(), "w0"))

	rec := env.post(t, "/centrifugo/publish", map[string]any{
		"client":  "client-1",
		"user":    "u1",
		"channel": "chat",
		"data":    map[string]string{"text": "  hello  "},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody(t, rec)["result"].(map[string]any)
	data := result["data"].(map[string]any)
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "hello", data["text"])
	assert.Equal(t, map[string]any{"id": "u1", "name": "Alice"}, data["user"])

	_, err := message.ParseTimestamp(data["timestamp"].(string))
	require.NoError(t, err)

	// Exactly one record landed on the worker's stream, fully enriched.
	records, err := env.store.ReadRecords(context.Background(), store.WorkerStreamKey("w0"), store.CursorEarliest, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	payload, err := message.Decode(records[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, data["id"], payload.ID)
	assert.Equal(t, "chat", payload.Channel)
	assert.Equal(t, "w0", payload.WorkerID)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "Alice", payload.UserName)
	assert.Equal(t, "hello", payload.Text)
	assert.Equal(t, "client-1", payload.ClientID)
	assert.Equal(t, message.TypeMessage, payload.Type)
	assert.JSONEq(t, `{"text":"  hello  "}`, string(payload.Raw))
}

func TestPublishIsSticky(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")
	ctx := context.Background()
	require.NoError(t, env.store.RegisterWorker(ctx, "w0"))
	require.NoError(t, env.store.RegisterWorker(ctx, "w1"))

	for i := 0; i < 4; i++ {
		rec := env.post(t, "/centrifugo/publish", map[string]any{
			"client": "client-1", "user": "u1", "channel": "chat:room-1",
			"data": map[string]string{"text": "hi"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Every message for the channel landed on the one bound worker.
	w0 := env.store.StreamLen(store.WorkerStreamKey("w0"))
	w1 := env.store.StreamLen(store.WorkerStreamKey("w1"))
	assert.Equal(t, 4, w0+w1)
	assert.True(t, w0 == 4 || w1 == 4, "expected all records on one stream, got %d/%d", w0, w1)
}

func TestPublishTextBounds(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")
	require.NoError(t, env.store.RegisterWorker(context.Background(), "w0"))

	publish := func(text string) *int {
		rec := env.post(t, "/centrifugo/publish", map[string]any{
			"client": "client-1", "user": "u1", "channel": "chat",
			"data": map[string]string{"text": text},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		if errObj, ok := body["error"].(map[string]any); ok {
			code := int(errObj["code"].(float64))
			return &code
		}
		return nil
	}

	assert.Equal(t, CodeInvalid, *publish(""))
	assert.Equal(t, CodeInvalid, *publish("   "))
	assert.Nil(t, publish("x"))
	assert.Nil(t, publish(strings.Repeat("y", 5000)))
	assert.Equal(t, CodeInvalid, *publish(strings.Repeat("y", 5001)))

	// Length is measured in characters, not bytes.
	assert.Nil(t, publish(strings.Repeat("é", 5000)))
}

func TestPublishMissingData(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")

	rec := env.post(t, "/centrifugo/publish", map[string]any{
		"client": "client-1", "user": "u1", "channel": "chat",
	})
	code, msg := proxyErrorOf(t, rec)
	assert.Equal(t, CodeInvalid, code)
	assert.Equal(t, "Invalid message", msg)
}

func TestPublishUnknownUser(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.post(t, "/centrifugo/publish", map[string]any{
		"client": "client-1", "user": "ghost", "channel": "chat",
		"data": map[string]string{"text": "hi"},
	})
	code, _ := proxyErrorOf(t, rec)
	assert.Equal(t, CodeUserNotFound, code)
}

func TestPublishNoActiveWorkers(t *testing.T) {
	env := newTestEnv(t, "")
	registerUser(t, env, "u1", "Alice")

	rec := env.post(t, "/centrifugo/publish", map[string]any{
		"client": "client-1", "user": "u1", "channel": "chat",
		"data": map[string]string{"text": "hi"},
	})
	code, msg := proxyErrorOf(t, rec)
	assert.Equal(t, CodeInternal, code)
	assert.Equal(t, "Failed to process message", msg)
}

func TestProxyMalformedBody(t *testing.T) {
	env := newTestEnv(t, "")

	for _, path := range []string{"/centrifugo/connect", "/centrifugo/subscribe", "/centrifugo/publish"} {
		rec := newRecorderFor(env, newRawPost(t, path, `{"user":`))
		code, _ := proxyErrorOf(t, rec)
		assert.Equal(t, CodeInvalid, code, "path %s", path)
	}
}

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/channel"
	"github.com/realtime-ai/realtime-message-gateway/internal/message"
	"github.com/realtime-ai/realtime-message-gateway/internal/metrics"
	"github.com/realtime-ai/realtime-message-gateway/internal/routing"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

// maxTextLength bounds the published message text, in runes, after trimming.
const maxTextLength = 5000

// ProxyHandler groups the three callbacks the broker invokes on connect,
// subscribe and publish. It is the policy authority of the data plane:
// everything the broker fans out has passed through here first.
type ProxyHandler struct {
	users  user.Repository
	router *routing.Router
	store  store.Store
	logger *zap.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(users user.Repository, router *routing.Router, st store.Store, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{
		users:  users,
		router: router,
		store:  st,
		logger: logger.Named("proxy"),
	}
}

// -----------------------------------------------------------------------------
// Connect
// -----------------------------------------------------------------------------

// connectRequest is the body of the broker's connect callback. The data
// object is the connect payload the client attached to its WebSocket
// handshake; the transport fields are informational.
type connectRequest struct {
	Client    string `json:"client"`
	Transport string `json:"transport"`
	Protocol  string `json:"protocol"`
	Encoding  string `json:"encoding"`
	Data      *struct {
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
	} `json:"data"`
}

// Connect handles POST /centrifugo/connect. It admits the session when the
// client presented a user identity, creating the user on first sight.
func (h *ProxyHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeProxyJSON(w, r, &req) {
		return
	}

	if req.Data == nil || req.Data.UserID == "" || req.Data.UserName == "" {
		Reject(w, CodeMissingUserData, "Missing user data")
		return
	}

	u, err := h.users.Upsert(r.Context(), req.Data.UserID, req.Data.UserName)
	if err != nil {
		if errors.Is(err, user.ErrInvalidName) {
			Reject(w, CodeInvalid, "Invalid user name")
			return
		}
		h.logger.Error("connect upsert failed", zap.String("user_id", req.Data.UserID), zap.Error(err))
		Reject(w, CodeInternal, "Failed to process connection")
		return
	}

	h.logger.Debug("client connected",
		zap.String("client", req.Client),
		zap.String("user_id", u.ID),
	)

	Result(w, map[string]any{
		"user": u.ID,
		"info": map[string]any{"name": u.Name},
	})
}

// -----------------------------------------------------------------------------
// Subscribe
// -----------------------------------------------------------------------------

// subscribeRequest is the body of the broker's subscribe callback.
type subscribeRequest struct {
	Client  string          `json:"client"`
	User    string          `json:"user"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Subscribe handles POST /centrifugo/subscribe. It enforces the channel
// grammar and the personal-channel ownership rule.
func (h *ProxyHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeProxyJSON(w, r, &req) {
		return
	}

	if _, err := h.users.GetByID(r.Context(), req.User); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			Reject(w, CodeUserNotFound, "User not found")
			return
		}
		h.logger.Error("subscribe user lookup failed", zap.String("user", req.User), zap.Error(err))
		Reject(w, CodeInternal, "Failed to process subscription")
		return
	}

	if err := channel.Authorize(req.Channel, req.User); err != nil {
		switch {
		case errors.Is(err, channel.ErrNotOwner):
			Reject(w, CodeInvalid, "Cannot subscribe to other user channels")
		default:
			Reject(w, CodeInvalid, "Invalid channel")
		}
		return
	}

	result := map[string]any{}
	if len(req.Data) > 0 {
		result["info"] = req.Data
	}
	Result(w, result)
}

// -----------------------------------------------------------------------------
// Publish
// -----------------------------------------------------------------------------

// publishRequest is the body of the broker's publish callback. Data is kept
// raw: the text field is extracted for validation and the whole object is
// carried into the stream record for consumers that want the original.
type publishRequest struct {
	Client  string          `json:"client"`
	User    string          `json:"user"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	Info    *struct {
		Name string `json:"name"`
	} `json:"info"`
}

// publishData is the portion of the publish data the gateway validates.
type publishData struct {
	Text string `json:"text"`
}

// Publish handles POST /centrifugo/publish. It validates and enriches the
// message, resolves the owning worker, and appends the record to that
// worker's stream. The returned result is what the broker fans out.
func (h *ProxyHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !decodeProxyJSON(w, r, &req) {
		return
	}

	u, err := h.users.GetByID(r.Context(), req.User)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.reject(w, CodeUserNotFound, "User not found")
			return
		}
		h.logger.Error("publish user lookup failed", zap.String("user", req.User), zap.Error(err))
		h.reject(w, CodeInternal, "Failed to process message")
		return
	}

	var data publishData
	if len(req.Data) == 0 || json.Unmarshal(req.Data, &data) != nil {
		h.reject(w, CodeInvalid, "Invalid message")
		return
	}
	text := strings.TrimSpace(data.Text)
	if text == "" || utf8.RuneCountInString(text) > maxTextLength {
		h.reject(w, CodeInvalid, "Invalid message")
		return
	}

	workerID, err := h.router.Resolve(r.Context(), req.Channel)
	if err != nil {
		if errors.Is(err, routing.ErrNoActiveWorkers) {
			h.logger.Warn("publish with no active workers", zap.String("channel", req.Channel))
		} else {
			h.logger.Error("publish resolve failed", zap.String("channel", req.Channel), zap.Error(err))
		}
		h.reject(w, CodeInternal, "Failed to process message")
		return
	}

	now := time.Now()
	payload := &message.Payload{
		ID:        uuid.NewString(),
		Channel:   req.Channel,
		WorkerID:  workerID,
		UserID:    u.ID,
		UserName:  u.Name,
		Text:      text,
		Timestamp: message.FormatTimestamp(now),
		Raw:       req.Data,
		ClientID:  req.Client,
		Type:      message.TypeMessage,
	}

	encoded, err := payload.Encode()
	if err != nil {
		h.logger.Error("publish encode failed", zap.Error(err))
		h.reject(w, CodeInternal, "Failed to process message")
		return
	}

	if _, err := h.store.AppendRecord(r.Context(), store.WorkerStreamKey(workerID), encoded); err != nil {
		// The append failing is evidence the cached route may be stale;
		// the next resolve re-validates against the store.
		h.router.Invalidate(req.Channel)
		h.logger.Error("publish append failed",
			zap.String("channel", req.Channel),
			zap.String("worker_id", workerID),
			zap.Error(err),
		)
		h.reject(w, CodeInternal, "Failed to process message")
		return
	}

	metrics.PublishAccepted.Inc()
	Result(w, map[string]any{
		"data": map[string]any{
			"id":        payload.ID,
			"text":      payload.Text,
			"user":      map[string]any{"id": u.ID, "name": u.Name},
			"timestamp": payload.Timestamp,
		},
	})
}

// reject rejects a publish and counts it by code.
func (h *ProxyHandler) reject(w http.ResponseWriter, code int, msg string) {
	metrics.PublishRejected.WithLabelValues(strconv.Itoa(code)).Inc()
	Reject(w, code, msg)
}

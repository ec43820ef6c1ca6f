package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.post(t, "/auth/login", map[string]string{"name": "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User            *user.User `json:"user"`
		Token           string     `json:"token"`
		CentrifugoToken string     `json:"centrifugoToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.User)
	assert.NotEmpty(t, resp.User.ID)
	assert.Equal(t, "Alice", resp.User.Name)

	// Both tokens verify against their own issuer and carry the identity.
	sessionClaims, err := env.session.VerifySession(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, sessionClaims.Subject)
	assert.Equal(t, "Alice", sessionClaims.Name)

	brokerClaims, err := env.broker.VerifyBroker(resp.CentrifugoToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, brokerClaims.Subject)
	assert.Equal(t, "Alice", brokerClaims.Info.Name)

	// The session token does not verify as a broker token: the secrets are
	// independent.
	_, err = env.broker.VerifyBroker(resp.Token)
	require.Error(t, err)
}

func TestLoginSameNameSameIdentity(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.post(t, "/auth/login", map[string]string{"name": "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody(t, rec)["user"].(map[string]any)

	rec = env.post(t, "/auth/login", map[string]string{"name": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody(t, rec)["user"].(map[string]any)

	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, "Alice", second["name"])
}

func TestLoginNameBounds(t *testing.T) {
	env := newTestEnv(t, "")

	for _, name := range []string{"", "   ", strings.Repeat("x", 51)} {
		rec := env.post(t, "/auth/login", map[string]string{"name": name})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		body := decodeBody(t, rec)
		errObj := body["error"].(map[string]any)
		assert.Equal(t, float64(CodeInvalid), errObj["code"])
		assert.Equal(t, "Name must be between 1 and 50 characters", errObj["message"])
	}

	for _, name := range []string{"x", strings.Repeat("y", 50)} {
		rec := env.post(t, "/auth/login", map[string]string{"name": name})
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLoginMalformedBody(t *testing.T) {
	env := newTestEnv(t, "")

	req := newRawPost(t, "/auth/login", `{"name":`)
	rec := newRecorderFor(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

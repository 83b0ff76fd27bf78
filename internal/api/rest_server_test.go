package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-core/internal/network"
	"github.com/annel0/voxel-core/internal/server"
	"github.com/annel0/voxel-core/internal/vec"
)

const testSecret = "test-secret"

type fakeGame struct {
	saves  int
	kicked []uint16
	status server.Status
}

func (g *fakeGame) Status() server.Status { return g.status }

func (g *fakeGame) Players() []server.PlayerStatus {
	return []server.PlayerStatus{{PeerID: 2, Name: "alice", Position: vec.V3F{X: 1, Y: 2, Z: 3}}}
}

func (g *fakeGame) Save() (int, error) {
	g.saves++
	return 7, nil
}

func (g *fakeGame) Kick(peerID uint16) error {
	if peerID != 2 {
		return fmt.Errorf("%w: id=%d", network.ErrPeerNotFound, peerID)
	}
	g.kicked = append(g.kicked, peerID)
	return nil
}

func newTestAPI(t *testing.T, secret string) (*RestServer, *fakeGame) {
	t.Helper()
	game := &fakeGame{status: server.Status{
		WorldID: "w-1",
		Clients: 1,
		Sectors: 3,
		Blocks:  12,
		Uptime:  90 * time.Second,
	}}
	rs := NewRestServer(Config{Game: game, AdminSecret: secret, Registry: prometheus.NewRegistry()})
	return rs, game
}

func request(t *testing.T, rs *RestServer, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)
	return w
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := IssueAdminToken(testSecret, "root", time.Hour)
	require.NoError(t, err)
	return token
}

func TestStatus(t *testing.T) {
	rs, _ := newTestAPI(t, "")

	w := request(t, rs, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "w-1", body["world_id"])
	assert.Equal(t, "1m 30s", body["uptime"])
	assert.EqualValues(t, 1, body["clients"])
	assert.EqualValues(t, 3, body["loaded_sectors"])
	assert.EqualValues(t, 12, body["loaded_blocks"])
	assert.Contains(t, body, "cpu_percent")
	assert.Contains(t, body, "rss_mb")
}

func TestPlayers(t *testing.T) {
	rs, _ := newTestAPI(t, "")

	w := request(t, rs, http.MethodGet, "/api/players", "")
	require.Equal(t, http.StatusOK, w.Code)

	var players []server.PlayerStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &players))
	require.Len(t, players, 1)
	assert.Equal(t, "alice", players[0].Name)
	assert.Equal(t, float32(2), players[0].Position.Y)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	rs, game := newTestAPI(t, "")

	w := request(t, rs, http.MethodPost, "/api/admin/save", "anything")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, game.saves)
}

func TestAdminRequiresToken(t *testing.T) {
	rs, game := newTestAPI(t, testSecret)

	assert.Equal(t, http.StatusUnauthorized, request(t, rs, http.MethodPost, "/api/admin/save", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, rs, http.MethodPost, "/api/admin/save", "garbage").Code)

	foreign, err := IssueAdminToken("other-secret", "root", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, rs, http.MethodPost, "/api/admin/save", foreign).Code)

	expired, err := IssueAdminToken(testSecret, "root", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, rs, http.MethodPost, "/api/admin/save", expired).Code)

	assert.Zero(t, game.saves)
}

func TestAdminRejectsNonAdminClaims(t *testing.T) {
	rs, _ := newTestAPI(t, testSecret)

	now := time.Now()
	claims := &AdminClaims{
		Name: "guest",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, request(t, rs, http.MethodPost, "/api/admin/save", token).Code)
}

func TestAdminSave(t *testing.T) {
	rs, game := newTestAPI(t, testSecret)

	w := request(t, rs, http.MethodPost, "/api/admin/save", adminToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, game.saves)

	var resp GenericResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.EqualValues(t, 7, resp.Data.(map[string]interface{})["blocks"])
}

func TestAdminKick(t *testing.T) {
	rs, game := newTestAPI(t, testSecret)
	token := adminToken(t)

	assert.Equal(t, http.StatusOK, request(t, rs, http.MethodPost, "/api/admin/kick/2", token).Code)
	assert.Equal(t, []uint16{2}, game.kicked)

	assert.Equal(t, http.StatusNotFound, request(t, rs, http.MethodPost, "/api/admin/kick/9", token).Code)
	assert.Equal(t, http.StatusBadRequest, request(t, rs, http.MethodPost, "/api/admin/kick/abc", token).Code)
	assert.Equal(t, http.StatusBadRequest, request(t, rs, http.MethodPost, "/api/admin/kick/70000", token).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rs, _ := newTestAPI(t, "")

	require.Equal(t, http.StatusOK, request(t, rs, http.MethodGet, "/api/status", "").Code)
	w := request(t, rs, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voxel_api_http_request_duration_seconds")
}

func TestHealth(t *testing.T) {
	rs, _ := newTestAPI(t, "")
	w := request(t, rs, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestIssueAdminTokenNeedsSecret(t *testing.T) {
	_, err := IssueAdminToken("", "root", time.Hour)
	assert.True(t, errors.Is(err, ErrNoSecret))

	claims, err := ParseAdminToken(testSecret, adminToken(t))
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Name)
	assert.True(t, claims.Admin)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", FormatUptime(5*time.Second))
	assert.Equal(t, "2h 0m 1s", FormatUptime(2*time.Hour+time.Second))
	assert.Equal(t, "1d 1h 1m 1s", FormatUptime(25*time.Hour+61*time.Second))
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/spawnsvc/internal/auth"
	"github.com/annel0/spawnsvc/internal/service"
	"github.com/annel0/spawnsvc/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const arenaJSON = `{
	"spawn_points": [
		{"id": "red-1", "tag": "red", "position": {"x": 0, "y": 0, "z": 1}},
		{"id": "blue-1", "tag": "blue", "position": {"x": 40, "y": 0, "z": 1}}
	],
	"blockers": [
		{"min": {"x": -50, "y": -50, "z": -50}, "max": {"x": 10, "y": 50, "z": 50}}
	]
}`

const arenaYAML = `
spawn_points:
  - id: red-1
    tag: red
    position: {x: 0, y: 0, z: 1}
`

type firstRandom struct{}

func (firstRandom) IntRange(lo, _ int) int { return lo }

type testServer struct {
	rs    *RestServer
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := service.New(service.Options{
		Repo:       storage.NewMemorySceneRepo(),
		Random:     firstRandom{},
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(auth.Options{
		Secret:        []byte("0123456789abcdef0123456789abcdef"),
		AdminUser:     "admin",
		AdminPassHash: string(hash),
	})

	reg := prometheus.NewRegistry()
	rs := NewRestServer(Config{Service: svc, Auth: authn, Registerer: reg, Gatherer: reg})

	token, err := authn.GenerateJWT("admin", true)
	require.NoError(t, err)
	return &testServer{rs: rs, token: token}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	ts.rs.Router().ServeHTTP(w, req)

	var resp GenericResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (ts *testServer) admin() []string {
	return []string{"Authorization", "Bearer " + ts.token}
}

func dataMap(t *testing.T, resp GenericResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w, _ = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "spawn_api_http_request_duration_seconds")
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.True(t, login.Success)
	assert.NotEmpty(t, login.Token)

	w, _ = ts.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/auth/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPut, "/api/scenes/arena", arenaJSON)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodPut, "/api/scenes/arena", arenaJSON, "Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodPut, "/api/scenes/arena", arenaJSON, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userToken, err := ts.rs.auth.GenerateJWT("viewer", false)
	require.NoError(t, err)
	w, _ = ts.do(t, http.MethodPut, "/api/scenes/arena", arenaJSON, "Authorization", "Bearer "+userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSceneLifecycleAndSelect(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodPut, "/api/scenes/arena", arenaJSON, ts.admin()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.0, dataMap(t, resp)["version"])

	w, resp = ts.do(t, http.MethodGet, "/api/scenes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"arena"}, resp.Data)

	w, resp = ts.do(t, http.MethodGet, "/api/scenes/arena", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "arena", dataMap(t, resp)["id"])

	// red-1 занята и спасти её нельзя: тег не помогает, выбирается blue-1
	w, resp = ts.do(t, http.MethodPost, "/api/scenes/arena/select", `{"tag":"red"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, "unoccupied", data["outcome"])
	assert.Equal(t, "blue-1", data["point"].(map[string]interface{})["id"])

	// Пустое тело - запрос без тега
	w, resp = ts.do(t, http.MethodPost, "/api/scenes/arena/select", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "unoccupied", dataMap(t, resp)["outcome"])

	w, _ = ts.do(t, http.MethodPost, "/api/scenes/arena/select", `{"tag":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/scenes/missing/select", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodDelete, "/api/scenes/arena", "", ts.admin()...)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/api/scenes/arena", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectWithOddFootprints(t *testing.T) {
	ts := newTestServer(t)
	w, _ := ts.do(t, http.MethodPut, "/api/scenes/arena", arenaJSON, ts.admin()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Отрицательные размеры заменяются дефолтным footprint
	w, resp := ts.do(t, http.MethodPost, "/api/scenes/arena/select",
		`{"tag":"red","footprint":{"half_extents":{"x":-1,"y":-1,"z":-1}}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, "unoccupied", data["outcome"])
	assert.Equal(t, "blue-1", data["point"].(map[string]interface{})["id"])

	// Огромный footprint задевает препятствие из любой точки
	w, resp = ts.do(t, http.MethodPost, "/api/scenes/arena/select",
		`{"footprint":{"half_extents":{"x":40000,"y":40000,"z":1}}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "none", dataMap(t, resp)["outcome"])
}

func TestPutSceneYAMLAndInvalid(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPut, "/api/scenes/lobby", arenaYAML,
		"Authorization", "Bearer "+ts.token, "Content-Type", "application/yaml")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = ts.do(t, http.MethodPut, "/api/scenes/bad", `{"spawn_points":[{"id":""}]}`, ts.admin()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateScene(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodPost, "/api/scenes/gen/generate", `{"seed":3,"points":5,"tags":["red"]}`, ts.admin()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, "gen", data["id"])
	assert.Len(t, data["spawn_points"], 5)
}

func TestPlayersAndFindPlayerStart(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPut, "/api/scenes/arena", arenaJSON, ts.admin()...)
	require.Equal(t, http.StatusOK, w.Code)

	// Незарегистрированный игрок получает пустой результат
	w, resp := ts.do(t, http.MethodPost, "/api/scenes/arena/players/p1/start", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", dataMap(t, resp)["outcome"])
	assert.Nil(t, dataMap(t, resp)["point"])

	w, _ = ts.do(t, http.MethodPost, "/api/players", `{"id":"p1","name":"Alice","local":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = ts.do(t, http.MethodPost, "/api/players", `{"id":"p1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = ts.do(t, http.MethodPost, "/api/players", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = ts.do(t, http.MethodPost, "/api/scenes/arena/players/p1/start", `{"tag":"blue"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "tagged", data["outcome"])
	assert.Equal(t, "p1", data["player_id"])

	w, resp = ts.do(t, http.MethodGet, "/api/players?local=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, dataMap(t, resp)["count"])

	w, _ = ts.do(t, http.MethodDelete, "/api/players/p1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodDelete, "/api/players/p1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimeAndServerInfo(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodGet, "/api/time", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataMap(t, resp)["started"])

	w, resp = ts.do(t, http.MethodGet, "/api/server", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, 0.0, data["scenes"])
	assert.Contains(t, data, "build")
}

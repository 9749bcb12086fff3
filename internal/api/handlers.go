package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/annel0/spawnsvc/internal/auth"
	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/service"
	"github.com/annel0/spawnsvc/internal/session"
	"github.com/annel0/spawnsvc/internal/spawn"
	"github.com/gin-gonic/gin"
)

func isInvalid(err error) bool {
	return errors.Is(err, scene.ErrInvalidScene)
}

func isConflict(err error) bool {
	return errors.Is(err, session.ErrPlayerExists)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// handleLogin обрабатывает запрос на вход администратора
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	token, err := rs.auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Success: true, Token: token, Message: "Успешный вход"})
}

// SelectRequest - тело запроса выбора точки
type SelectRequest struct {
	Tag       string             `json:"tag"`
	Footprint *physics.Footprint `json:"footprint,omitempty"`
}

// bindSelect читает необязательное тело запроса выбора
func bindSelect(c *gin.Context) (SelectRequest, bool) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return req, false
	}
	return req, true
}

func (rs *RestServer) handleSelect(c *gin.Context) {
	req, valid := bindSelect(c)
	if !valid {
		return
	}

	sel, err := rs.service.Select(c.Request.Context(), c.Param("id"), spawn.Request{Tag: req.Tag, Footprint: req.Footprint})
	if err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sel)
}

func (rs *RestServer) handleFindPlayerStart(c *gin.Context) {
	req, valid := bindSelect(c)
	if !valid {
		return
	}

	sel, err := rs.service.FindPlayerStart(c.Request.Context(), c.Param("id"), c.Param("player"), req.Tag, req.Footprint)
	if err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sel)
}

func (rs *RestServer) handleListScenes(c *gin.Context) {
	ids, err := rs.service.ListScenes(c.Request.Context())
	if err != nil {
		rs.failErr(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	ok(c, http.StatusOK, ids)
}

func (rs *RestServer) handleGetScene(c *gin.Context) {
	sc, err := rs.service.GetScene(c.Request.Context(), c.Param("id"))
	if err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sc)
}

// handlePutScene принимает сцену в JSON или YAML (Content-Type application/yaml).
// ID берётся из пути.
func (rs *RestServer) handlePutScene(c *gin.Context) {
	var sc scene.Scene
	if strings.Contains(c.ContentType(), "yaml") {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		parsed, err := scene.Parse(withSceneID(data, c.Param("id")))
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		sc = *parsed
	} else if err := c.ShouldBindJSON(&sc); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат сцены: "+err.Error())
		return
	}
	sc.ID = c.Param("id")

	version, err := rs.service.PutScene(c.Request.Context(), &sc)
	if err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": sc.ID, "version": version})
}

// withSceneID дописывает id в YAML документ, если его там нет
func withSceneID(data []byte, id string) []byte {
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "id:") {
			return data
		}
	}
	return append([]byte("id: "+id+"\n"), data...)
}

func (rs *RestServer) handleDeleteScene(c *gin.Context) {
	if err := rs.service.DeleteScene(c.Request.Context(), c.Param("id")); err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

func (rs *RestServer) handleGenerateScene(c *gin.Context) {
	var params service.GenerateParams
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}

	sc, err := rs.service.GenerateScene(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, sc)
}

// JoinRequest - регистрация игрока
type JoinRequest struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name"`
	Local bool   `json:"local"`
}

func (rs *RestServer) handleListPlayers(c *gin.Context) {
	localOnly := c.Query("local") == "true"
	ok(c, http.StatusOK, gin.H{
		"players": rs.service.Players(localOnly),
		"count":   rs.service.Registry().PlayersNumber(localOnly),
	})
}

func (rs *RestServer) handleJoinPlayer(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	ctrl := session.Controller{ID: req.ID, Local: req.Local}
	if req.Name != "" {
		ctrl.State = &session.PlayerState{Name: req.Name}
	}
	joined, err := rs.service.JoinPlayer(c.Request.Context(), ctrl)
	if err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, joined)
}

func (rs *RestServer) handleLeavePlayer(c *gin.Context) {
	if err := rs.service.LeavePlayer(c.Request.Context(), c.Param("id")); err != nil {
		rs.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

func (rs *RestServer) handleTime(c *gin.Context) {
	clock := rs.service.Clock()
	ok(c, http.StatusOK, gin.H{
		"started":     clock.Started(),
		"time":        clock.Time(),
		"server_time": clock.ServerTime(),
	})
}

// handleServerInfo возвращает информацию о сборке и состоянии процесса
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, err := rs.metrics.GetCPUUsage()
	if err != nil {
		rs.log.Debug("CPU метрика недоступна: %v", err)
	}

	ids, err := rs.service.ListScenes(c.Request.Context())
	if err != nil {
		rs.failErr(c, err)
		return
	}

	ok(c, http.StatusOK, gin.H{
		"build":     session.Build(),
		"uptime":    rs.metrics.GetUptime(),
		"memory_mb": memoryMB,
		"cpu":       cpuPercent,
		"memory":    rs.metrics.GetDetailedMemoryStats(),
		"scenes":    len(ids),
		"players":   rs.service.Registry().PlayersNumber(false),
	})
}

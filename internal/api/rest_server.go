package api

import (
	"context"
	"net/http"

	"github.com/annel0/spawnsvc/internal/auth"
	"github.com/annel0/spawnsvc/internal/eventbus"
	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/middleware"
	"github.com/annel0/spawnsvc/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервиса точек появления
type RestServer struct {
	router  *gin.Engine
	service *service.SpawnService
	auth    *auth.Authenticator
	bus     eventbus.EventBus
	port    string
	metrics *ServerMetrics
	log     *logging.Logger

	httpServer *http.Server

	// streamCtx отменяется в Stop и закрывает открытые потоки событий
	streamCtx   context.Context
	stopStreams context.CancelFunc
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port    string               // адрес для запуска сервера (":8088")
	Service *service.SpawnService // сервис выбора точек
	Auth    *auth.Authenticator  // JWT администраторов
	Bus     eventbus.EventBus     // nil - поток событий недоступен
	// Registerer/Gatherer для HTTP метрик и /metrics; nil - глобальный регистр
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Auth == nil {
		config.Auth = auth.NewAuthenticator(auth.Options{})
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("spawn_api"))
	router.Use(middleware.NewRequestLogger(nil).Handler())

	promMw := middleware.NewPrometheusMiddleware("spawn_api", config.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	server := &RestServer{
		router:  router,
		service: config.Service,
		auth:    config.Auth,
		bus:     config.Bus,
		port:    config.Port,
		metrics: NewServerMetrics(),
		log:     logging.GetServerLogger(),
	}
	server.streamCtx, server.stopStreams = context.WithCancel(context.Background())

	server.setupRoutes()
	return server
}

// Router возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Router() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")

	api.POST("/auth/login", rs.handleLogin)

	// Выбор точек и чтение сцен
	api.GET("/scenes", rs.handleListScenes)
	api.GET("/scenes/:id", rs.handleGetScene)
	api.POST("/scenes/:id/select", rs.handleSelect)
	api.POST("/scenes/:id/players/:player/start", rs.handleFindPlayerStart)

	// Игроки
	api.GET("/players", rs.handleListPlayers)
	api.POST("/players", rs.handleJoinPlayer)
	api.DELETE("/players/:id", rs.handleLeavePlayer)

	api.GET("/events/ws", rs.handleEventStream)

	api.GET("/time", rs.handleTime)
	api.GET("/server", rs.handleServerInfo)

	// Административные эндпоинты (только для админов)
	admin := api.Group("/")
	admin.Use(rs.jwtMiddleware(), rs.adminMiddleware())
	{
		admin.PUT("/scenes/:id", rs.handlePutScene)
		admin.DELETE("/scenes/:id", rs.handleDeleteScene)
		admin.POST("/scenes/:id/generate", rs.handleGenerateScene)
	}

	rs.router.GET("/health", rs.handleHealth)
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, GenericResponse{Success: true, Message: "OK", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: message})
}

// failErr переводит ошибку сервиса в HTTP статус
func (rs *RestServer) failErr(c *gin.Context, err error) {
	switch {
	case service.IsNotFound(err):
		fail(c, http.StatusNotFound, err.Error())
	case isInvalid(err):
		fail(c, http.StatusBadRequest, err.Error())
	case isConflict(err):
		fail(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		rs.log.Error("Ошибка обработки %s %s: %v", c.Request.Method, c.FullPath(), err)
		fail(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
	}
}

// handleHealth - проверка состояния
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": rs.metrics.GetUptime(),
	})
}

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Start запускает HTTP сервер в отдельной горутине.
// Ошибка привязки к порту возвращается сразу.
func (rs *RestServer) Start() error {
	ln, err := net.Listen("tcp", rs.port)
	if err != nil {
		return err
	}

	rs.httpServer = &http.Server{
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := rs.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.log.Error("❌ Ошибка REST API сервера: %v", err)
		}
	}()

	rs.log.Info("✅ REST API сервер запущен на %s", ln.Addr())
	rs.log.Info("📋 Доступные эндпоинты:")
	rs.log.Info("   GET  /health                                - Проверка состояния")
	rs.log.Info("   GET  /metrics                               - Prometheus метрики")
	rs.log.Info("   POST /api/auth/login                        - Вход администратора")
	rs.log.Info("   GET  /api/scenes[/:id]                      - Сцены")
	rs.log.Info("   POST /api/scenes/:id/select                 - Выбор точки появления")
	rs.log.Info("   POST /api/scenes/:id/players/:player/start  - Точка появления игрока")
	rs.log.Info("   GET|POST /api/players, DELETE /api/players/:id")
	rs.log.Info("   PUT|DELETE /api/scenes/:id, POST /api/scenes/:id/generate (только админы)")
	return nil
}

// Stop останавливает HTTP сервер, дожидаясь завершения запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	// Shutdown не ждёт hijacked websocket-соединения, их закрываем сами
	rs.stopStreams()
	if rs.httpServer == nil {
		return nil
	}
	rs.log.Info("🛑 Остановка REST API сервера...")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := rs.httpServer.Shutdown(ctx); err != nil {
		rs.log.Error("❌ Ошибка при остановке HTTP сервера: %v", err)
		return err
	}

	rs.log.Info("✅ REST API сервер остановлен")
	return nil
}

// Package api - HTTP API для наблюдения и администрирования сервера.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-core/internal/logging"
	"github.com/annel0/voxel-core/internal/middleware"
	"github.com/annel0/voxel-core/internal/network"
	"github.com/annel0/voxel-core/internal/server"
)

// GameServer - то, что API нужно от игрового сервера.
type GameServer interface {
	Status() server.Status
	Players() []server.PlayerStatus
	Save() (int, error)
	Kick(peerID uint16) error
}

// RestServer - HTTP API поверх gin.
type RestServer struct {
	router      *gin.Engine
	http        *http.Server
	game        GameServer
	adminSecret string
	metrics     *ServerMetrics
	log         *logging.Logger
}

// Config - параметры REST сервера.
type Config struct {
	Addr        string               // адрес для прослушивания, например ":30080"
	Game        GameServer           // игровой сервер
	AdminSecret string               // секрет HS256; пустой отключает /api/admin
	Registry    *prometheus.Registry // метрики для /metrics
}

// StatusResponse - тело GET /api/status.
type StatusResponse struct {
	server.Status
	Uptime     string  `json:"uptime"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSMB      float64 `json:"rss_mb"`
}

// GenericResponse - общий конверт ответа.
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создаёт REST API сервер.
func NewRestServer(config Config) *RestServer {
	if config.Addr == "" {
		config.Addr = ":30080"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	router.Use(otelgin.Middleware("voxel_api"))

	promMw := middleware.NewPrometheusMiddleware("voxel_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Registry)

	rs := &RestServer{
		router:      router,
		game:        config.Game,
		adminSecret: config.AdminSecret,
		metrics:     NewServerMetrics(),
		log:         logging.GetComponentLogger("api"),
	}
	rs.http = &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.setupRoutes()
	return rs
}

// Handler возвращает http.Handler роутера.
func (rs *RestServer) Handler() http.Handler { return rs.router }

func (rs *RestServer) setupRoutes() {
	api := rs.router.Group("/api")
	api.GET("/status", rs.handleStatus)
	api.GET("/players", rs.handlePlayers)

	admin := api.Group("/admin")
	admin.Use(rs.adminMiddleware())
	{
		admin.POST("/save", rs.handleSave)
		admin.POST("/kick/:peer", rs.handleKick)
	}

	rs.router.GET("/health", rs.handleHealth)
}

func (rs *RestServer) handleStatus(c *gin.Context) {
	st := rs.game.Status()
	cpuPercent, rssMB := rs.metrics.GetProcessUsage()
	c.JSON(http.StatusOK, StatusResponse{
		Status:     st,
		Uptime:     FormatUptime(st.Uptime),
		CPUPercent: cpuPercent,
		RSSMB:      rssMB,
	})
}

func (rs *RestServer) handlePlayers(c *gin.Context) {
	c.JSON(http.StatusOK, rs.game.Players())
}

func (rs *RestServer) handleSave(c *gin.Context) {
	n, err := rs.game.Save()
	if err != nil {
		rs.log.Error("admin save failed: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	rs.log.Info("💾 Admin %s saved %d blocks", c.GetString("admin_name"), n)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "saved",
		Data:    gin.H{"blocks": n},
	})
}

func (rs *RestServer) handleKick(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("peer"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "invalid peer id"})
		return
	}
	if err := rs.game.Kick(uint16(id)); err != nil {
		if errors.Is(err, network.ErrPeerNotFound) {
			c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "peer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	rs.log.Info("👢 Admin %s kicked peer_id=%d", c.GetString("admin_name"), id)
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "kicked"})
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
		"uptime": rs.metrics.GetUptime(),
		"memory": rs.metrics.GetDetailedMemoryStats(),
	})
}

// Start слушает адрес и обслуживает запросы до Stop.
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API listening on %s", rs.http.Addr)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop плавно останавливает HTTP-сервер.
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}

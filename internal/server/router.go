package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"hostpanel/internal/handler"
	"hostpanel/internal/middleware"
	"hostpanel/internal/service"
	"hostpanel/internal/socketio"
)

type Deps struct {
	Service        *service.Service
	Resolver       middleware.Resolver
	Socket         *socketio.Server
	DB             handler.Pinger
	DaemonSecret   string
	// LoginLimiter guards the login route; nil disables it.
	LoginLimiter   *middleware.RateLimiter
	// TrustedProxies may set X-Forwarded-For. Nil trusts none, so the client
	// address is always the TCP peer.
	TrustedProxies []string
	Logger         *zap.SugaredLogger
	Version        string
}

func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		logger.Errorw("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	health := &handler.HealthHandler{DB: deps.DB, Version: deps.Version}
	r.GET("/health", health.Check)

	if deps.Socket != nil {
		r.GET("/socket.io/", func(c *gin.Context) {
			deps.Socket.Serve(c.Writer, c.Request, c.ClientIP())
		})
	}

	api := r.Group("/api/v1")

	authHandler := &handler.AuthHandler{Service: deps.Service}
	login := []gin.HandlerFunc{authHandler.Login}
	if deps.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(deps.LoginLimiter)}, login...)
	}
	api.POST("/auth/login", login...)

	daemonHandler := &handler.DaemonHandler{Service: deps.Service, Logger: logger}
	daemon := api.Group("/daemon", middleware.RequireDaemonSecret(deps.DaemonSecret))
	daemon.POST("/register", daemonHandler.Register)
	daemon.POST("/connect", daemonHandler.Connect)
	daemon.POST("/servers/status", daemonHandler.Status)
	daemon.POST("/servers/logs", daemonHandler.Logs)
	daemon.POST("/servers/backups", daemonHandler.Backups)
	daemon.POST("/sftp", daemonHandler.SFTP)

	protected := api.Group("")
	protected.Use(middleware.RequirePrincipal(deps.Resolver))
	protected.POST("/auth/refresh", authHandler.Refresh)
	protected.GET("/users/me", authHandler.Me)
	protected.PATCH("/users/me", authHandler.UpdateMe)

	credentialHandler := &handler.CredentialHandler{Service: deps.Service}
	protected.GET("/api-credentials", credentialHandler.List)
	protected.POST("/api-credentials", credentialHandler.Create)
	protected.DELETE("/api-credentials/:credentialId", credentialHandler.Delete)

	serverHandler := &handler.ServerHandler{Service: deps.Service}
	protected.GET("/servers", serverHandler.List)
	servers := protected.Group("/servers/:serverId")
	servers.GET("", serverHandler.Get)
	servers.GET("/permissions", serverHandler.Permissions)
	servers.POST("/power/:action", serverHandler.Power)
	servers.GET("/status", serverHandler.Status)
	servers.GET("/stats", serverHandler.Stats)
	servers.PUT("/java", serverHandler.SetJava)
	servers.PATCH("/startup", serverHandler.SetStartup)
	servers.POST("/plugins/install", serverHandler.InstallPlugin)

	backupHandler := &handler.BackupHandler{Service: deps.Service}
	servers.GET("/backups", backupHandler.List)
	servers.POST("/backups", backupHandler.Create)
	servers.POST("/backups/:backupId/restore", backupHandler.Restore)
	servers.DELETE("/backups/:backupId", backupHandler.Delete)

	subuserHandler := &handler.SubuserHandler{Service: deps.Service}
	servers.GET("/subusers", subuserHandler.List)
	servers.POST("/subusers", subuserHandler.Add)
	servers.PUT("/subusers/:userId", subuserHandler.Update)
	servers.DELETE("/subusers/:userId", subuserHandler.Remove)

	admin := protected.Group("/admin")
	userHandler := &handler.UserHandler{Service: deps.Service}
	admin.GET("/users", userHandler.List)
	admin.POST("/users", userHandler.Create)
	admin.PATCH("/users/:userId", userHandler.Edit)
	admin.DELETE("/users/:userId", userHandler.Delete)
	admin.POST("/users/:userId/suspend", userHandler.Suspend)
	admin.POST("/users/:userId/unsuspend", userHandler.Unsuspend)

	admin.POST("/servers", serverHandler.Provision)
	admin.DELETE("/servers/:serverId", serverHandler.Delete)
	admin.POST("/servers/:serverId/suspend", serverHandler.Suspend)
	admin.POST("/servers/:serverId/unsuspend", serverHandler.Unsuspend)

	nodeHandler := &handler.NodeHandler{Service: deps.Service}
	admin.GET("/nodes", nodeHandler.List)
	admin.DELETE("/nodes/:nodeId", nodeHandler.Delete)
	admin.GET("/nodes/:nodeId/ping", nodeHandler.Ping)
	admin.GET("/nodes/:nodeId/system-info", nodeHandler.SystemInfo)

	return r
}

// NewLoginLimiter allows perMinute login attempts per client IP.
func NewLoginLimiter(perMinute int) *middleware.RateLimiter {
	return middleware.NewRateLimiter(perMinute, time.Minute)
}

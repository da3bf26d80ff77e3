// Package web gin server
package web

import (
	"net/http"

	ginMw "github.com/Laisky/gin-middlewares/v7"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	mcpServer "github.com/Laisky/capability-search/internal/mcp"
	"github.com/Laisky/capability-search/internal/web/search/controller"
	"github.com/Laisky/capability-search/library/log"
)

var (
	server = gin.New()
)

// RunServer starts the HTTP server hosting the REST search API and the MCP
// surface. It blocks until the server exits.
func RunServer(addr string, searchCtl *controller.Controller, mcp *mcpServer.Server) {
	server.Use(
		gin.Recovery(),
		ginMw.NewLoggerMiddleware(
			ginMw.WithLoggerMwColored(),
			ginMw.WithLevel(log.Logger.Level().String()),
			ginMw.WithLogger(log.Logger.Named("gin")),
		),
	)
	if !gconfig.Shared.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := ginMw.EnableMetric(server); err != nil {
		log.Logger.Panic("enable metric server", zap.Error(err))
	}

	server.Any("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello, world")
	})

	apiV1 := server.Group("/api/v1")
	searchCtl.RegisterRoutes(apiV1)

	if mcp != nil {
		server.Any("/mcp", ginMw.FromStd(mcp.Handler().ServeHTTP))
		server.Any("/mcp/*path", ginMw.FromStd(mcp.Handler().ServeHTTP))
	}

	log.Logger.Info("listening on http", zap.String("addr", addr))
	log.Logger.Panic("httpServer exit", zap.Error(server.Run(addr)))
}

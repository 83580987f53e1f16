package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ConnorWiseman/taka/internal/chat"
	"github.com/ConnorWiseman/taka/internal/config"
	"github.com/ConnorWiseman/taka/internal/metrics"
	"github.com/ConnorWiseman/taka/internal/mw"
)

// SetupRouter wires the Gin middleware chain and the three endpoints: health
// probe, metrics scrape and the websocket handshake. Everything else the
// widget does happens inside the socket protocol.
func SetupRouter(cfg config.Config, chatSrv *chat.Server) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS())
	// Keeps handshake hammering from a single address in check.
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/chat", chatSrv.Handler())

	return r
}

package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

func newRouter(e engines, timeout time.Duration, maxParams int, log zerolog.Logger) *gin.Engine {
	h := &handler{engines: e, timeout: timeout, maxParams: maxParams}

	router := gin.New()
	router.Use(
		requestLogger(log),
		cors(),
		withGzip(),
		recoverPanic(log),
		limitBody(maxBodyBytes),
	)

	router.GET("/healthz", healthz)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/endpoints", h.listEndpoints)
		v1.POST("/:provider/:endpoint", h.postBatch)
	}
	return router
}

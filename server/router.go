package server

import (
	"github.com/gin-gonic/gin"
	"github.com/krau/konadetect/service"
)

func NewRouter(detector service.Detector, opts Options) *gin.Engine {
	h := NewHandler(detector, opts)

	r := gin.Default()
	r.POST("/", Authenticate(opts.Token), h.DetectHandler)
	r.GET("/health", HealthHandler)
	return r
}

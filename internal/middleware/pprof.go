package middleware

import (
	"net/http/pprof"
	"runtime"

	"github.com/gin-gonic/gin"
)

// RegisterPprof 注册 pprof 调试端点
func RegisterPprof(r *gin.Engine) {
	debug := r.Group("/debug/pprof")
	{
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.POST("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		debug.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		debug.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		debug.GET("/block", gin.WrapH(pprof.Handler("block")))
		debug.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		debug.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
	}
}

// ForceGC 手动触发 GC
func ForceGC() gin.HandlerFunc {
	return func(c *gin.Context) {
		runtime.GC()
		c.JSON(200, gin.H{
			"message": "GC triggered successfully",
		})
	}
}

package handler

import (
	"log"
	"net/http"
	"time"

	"yieldengine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderPrincipal = "X-Principal"
	HeaderRequestID = "X-Request-ID"
	ctxPrincipal    = "principal"
	ctxRequestID    = "request_id"
)

// RequestIDMiddleware 沿用上游传入的请求ID，没有则生成一个并写回响应头
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s | principal=%s | request_id=%s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetString(ctxPrincipal),
			c.GetString(ctxRequestID),
		)
	}
}

// RecoveryMiddleware 捕获 panic，按统一响应格式返回 500
// 资金操作都在事务里，panic 时事务已由 gorm 回滚
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] request_id=%s, path=%s, err=%v", c.GetString(ctxRequestID), c.Request.URL.Path, err)
				c.Abort()
				response.ServerError(c, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, "+HeaderRequestID+", "+HeaderPrincipal)
		c.Header("Access-Control-Expose-Headers", HeaderRequestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// PrincipalMiddleware 读取调用方身份
// 身份由前置网关完成鉴权后写入请求头，这里只负责透传
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxPrincipal, c.GetHeader(HeaderPrincipal))
		c.Next()
	}
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// DefaultBodyLimit 默认请求体大小限制
const DefaultBodyLimit = 10 * 1024 * 1024 // 10MB

// BodySizeLimit 限制请求体大小的中间件
//
// Content-Length 超限时直接拒绝；未声明长度的请求体在读取时由 MaxBytesReader 截断，
// 处理器解析失败后按 413 返回。
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultBodyLimit
	}

	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, tooLarge(maxBytes))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}

// AbortIfTooLarge 若 err 由请求体超限引起，返回 413 并中止
func AbortIfTooLarge(c *gin.Context, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, tooLarge(maxErr.Limit))
	return true
}

func tooLarge(limit int64) gin.H {
	return gin.H{
		"success": false,
		"error":   "Request body too large",
		"message": fmt.Sprintf("Request body exceeds maximum size of %d bytes", limit),
		"limit":   limit,
	}
}


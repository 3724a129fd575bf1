package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 接口返回统一带 success 标志，附加字段平铺在同一层
type Fields map[string]interface{}

// OK 成功返回，fields 直接合并进响应体
func OK(c *gin.Context, fields Fields) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// OKMsg 仅带提示信息的成功返回
func OKMsg(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": msg,
	})
}

// Fail 失败返回，错误信息放在 error 字段
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.JSON(httpStatus, gin.H{
		"success": false,
		"error":   msg,
	})
}

// FailFields 失败返回，附带额外字段（如限流剩余秒数）
func FailFields(c *gin.Context, httpStatus int, msg string, fields Fields) {
	body := gin.H{"success": false, "error": msg}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(httpStatus, body)
}

// Package response 管理面 HTTP API 的统一响应壳。
// 成功与失败都带 code/msg/data 三件套，失败时额外给机器可读的 error 标签。
package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: msg,
		Data:    data,
	})
}

// errorHint 已知错误串到友好文案的映射条目
type errorHint struct {
	needle string // 错误信息里的特征子串
	code   int
	msg    string
	tag    string
}

// errorHints 前端据 tag 分支，msg 直接可展示。顺序即匹配优先级。
var errorHints = []errorHint{
	{"email already registered", 400, "该邮箱已被注册", "EMAIL_EXISTS"},
	{"password must be at least 8 characters long", 400, "密码至少需要8个字符", "INVALID_PASSWORD_LENGTH"},
	{"invalid credentials", 401, "邮箱或密码错误", "INVALID_CREDENTIALS"},
	{"authorization required", 401, "请先登录", "AUTH_REQUIRED"},
	{"invalid token", 401, "登录状态已失效，请重新登录", "INVALID_TOKEN"},
	{"device not found", 404, "设备不存在", "DEVICE_NOT_FOUND"},
	{"device already registered", 409, "该设备已被绑定", "DEVICE_EXISTS"},
	{"invalid device token", 401, "设备令牌无效", "INVALID_DEVICE_TOKEN"},
	{"reminder not found", 404, "提醒不存在", "REMINDER_NOT_FOUND"},
	{"unknown preference key", 400, "不支持的偏好项", "UNKNOWN_PREFERENCE"},
	{"preference value too long", 400, "偏好内容过长", "PREFERENCE_TOO_LONG"},
}

// AbortWithStatusJSON 中断后续 handler 并返回错误壳。
// 已知错误翻译成中文文案，未知错误原样透传并打 UNKNOWN_ERROR 标签。
func AbortWithStatusJSON(c *gin.Context, httpStatus int, err error) {
	resp := Response{
		Code:    httpStatus,
		Message: err.Error(),
		Error:   "UNKNOWN_ERROR",
	}

	for _, h := range errorHints {
		if strings.Contains(err.Error(), h.needle) {
			resp.Code = h.code
			resp.Message = h.msg
			resp.Error = h.tag
			break
		}
	}

	c.AbortWithStatusJSON(httpStatus, resp)
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/response"
)

// handleUserSignup handle user signup
func (h *Handlers) handleUserSignup(c *gin.Context) {
	var form models.RegisterUserForm
	if err := c.BindJSON(&form); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}

	user, err := models.CreateUser(h.db, form.Email, form.Password, form.DisplayName)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}

	logger.Info("[API] 新用户注册",
		zap.Uint("userId", user.ID),
		zap.String("email", user.Email))

	token, err := h.issueToken(user)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	response.Success(c, "registered", gin.H{
		"token": token,
		"user":  user,
	})
}

// handleUserSignin handle user signin
func (h *Handlers) handleUserSignin(c *gin.Context) {
	var form models.LoginForm
	if err := c.BindJSON(&form); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}

	user, err := models.GetUserByEmail(h.db, form.Email)
	if err != nil {
		// 不区分“用户不存在”和“密码错误”，避免账号枚举
		response.AbortWithStatusJSON(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	if !models.CheckPassword(user, form.Password) {
		response.AbortWithStatusJSON(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	if err := models.CheckUserAllowLogin(user); err != nil {
		response.AbortWithStatusJSON(c, http.StatusForbidden, err)
		return
	}

	if err := models.SetLastLogin(h.db, user, c.ClientIP()); err != nil {
		logger.Warn("[API] 记录登录信息失败", zap.Uint("userId", user.ID), zap.Error(err))
	}

	token, err := h.issueToken(user)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	response.Success(c, "ok", gin.H{
		"token": token,
		"user":  user,
	})
}

// handleUserInfo 当前登录用户信息
func (h *Handlers) handleUserInfo(c *gin.Context) {
	user := models.CurrentUser(c)
	if user == nil {
		response.AbortWithStatusJSON(c, http.StatusUnauthorized, errors.New("authorization required"))
		return
	}
	response.Success(c, "ok", user)
}

func (h *Handlers) issueToken(user *models.User) (string, error) {
	expire := time.Duration(h.cfg.Auth.TokenExpireHours) * time.Hour
	return auth.GenerateToken(h.cfg.Auth.SecretKey, user.ID, user.Email, expire)
}

package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/response"
)

// 角色常量
const (
	RoleAdmin = "admin" // 管理员
	RoleUser  = "user"  // 普通用户
)

const MinPasswordLen = 8

type LoginForm struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterUserForm struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

type User struct {
	BaseModel
	Email       string     `json:"email" gorm:"size:128;uniqueIndex"`
	Password    string     `json:"-" gorm:"size:128"`
	DisplayName string     `json:"displayName,omitempty" gorm:"size:128"`
	Enabled     bool       `json:"-" gorm:"default:true"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
	LastLoginIP string     `json:"-" gorm:"size:128"`
	LoginCount  int        `json:"loginCount" gorm:"default:0"`
	Role        string     `json:"role,omitempty" gorm:"size:50;default:'user'"`
}

func (u *User) TableName() string {
	return "users"
}

// IsAdmin 检查是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HashPassword bcrypt 哈希，空密码返回空串
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword 校验明文密码与存储的 bcrypt 哈希
func CheckPassword(user *User, password string) bool {
	if user.Password == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

func CreateUser(db *gorm.DB, email, password, displayName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("email is required")
	}
	if len(password) < MinPasswordLen {
		return nil, errors.New("password must be at least 8 characters long")
	}
	if IsExistsByEmail(db, email) {
		return nil, errors.New("email already registered")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := User{
		Email:       email,
		Password:    hash,
		DisplayName: displayName,
		Enabled:     true,
		Role:        RoleUser,
	}
	result := db.Create(&user)
	return &user, result.Error
}

func GetUserByID(db *gorm.DB, userID uint) (*User, error) {
	var val User
	result := db.Where("id", userID).Where("enabled", true).Take(&val)
	if result.Error != nil {
		return nil, result.Error
	}
	return &val, nil
}

func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var val User
	result := db.Where("email", strings.ToLower(email)).Take(&val)
	if result.Error != nil {
		return nil, result.Error
	}
	return &val, nil
}

func IsExistsByEmail(db *gorm.DB, email string) bool {
	_, err := GetUserByEmail(db, email)
	return err == nil
}

// SetPassword 更新密码哈希
func SetPassword(db *gorm.DB, user *User, password string) error {
	if len(password) < MinPasswordLen {
		return errors.New("password must be at least 8 characters long")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := db.Model(user).Update("password", hash).Error; err != nil {
		return err
	}
	user.Password = hash
	return nil
}

// SetLastLogin 记录登录时间、IP 并自增登录次数
func SetLastLogin(db *gorm.DB, user *User, lastIP string) error {
	now := time.Now().Truncate(time.Second)
	err := db.Model(user).Updates(map[string]any{
		"last_login":    &now,
		"last_login_ip": lastIP,
		"login_count":   gorm.Expr("login_count + 1"),
	}).Error
	if err != nil {
		return err
	}
	user.LastLogin = &now
	user.LastLoginIP = lastIP
	user.LoginCount++
	return nil
}

// CheckUserAllowLogin 登录前的状态校验
func CheckUserAllowLogin(user *User) error {
	if !user.Enabled {
		return errors.New("user not allow login")
	}
	if user.Role != RoleAdmin && user.Role != RoleUser {
		return fmt.Errorf("invalid user role: %s", user.Role)
	}
	return nil
}

// AuthRequired Gin 中间件：Bearer 令牌换当前用户，校验不过直接 401 中断
func AuthRequired(c *gin.Context) {
	if CurrentUser(c) != nil {
		c.Next()
		return
	}

	if config.GlobalConfig == nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, errors.New("server configuration not initialized"))
		return
	}

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		response.AbortWithStatusJSON(c, http.StatusUnauthorized, errors.New("authorization required"))
		return
	}
	token = strings.TrimPrefix(token, "Bearer ")

	claims, err := auth.ParseToken(config.GlobalConfig.Auth.SecretKey, token)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusUnauthorized, auth.ErrInvalidToken)
		return
	}

	db := c.MustGet(DbField).(*gorm.DB)
	// 令牌有效但用户被禁用的情况也要拦下来
	user, err := GetUserByID(db, claims.UserID)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusUnauthorized, auth.ErrInvalidToken)
		return
	}
	c.Set(UserField, user)
	c.Next()
}

// CurrentUser 请求上下文里的当前用户，未认证返回 nil
func CurrentUser(c *gin.Context) *User {
	if cached, exists := c.Get(UserField); exists && cached != nil {
		if user, ok := cached.(*User); ok {
			return user
		}
	}
	return nil
}

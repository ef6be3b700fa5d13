package bootstrap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/internal/models"
)

func setupTestDB(t testing.TB) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := models.Migrate(db); err != nil {
		t.Fatal(err)
	}

	return db
}

func TestSeedService_SeedAll(t *testing.T) {
	db := setupTestDB(t)
	service := SeedService{db: db}

	err := service.SeedAll()
	assert.NoError(t, err)

	var userCount int64
	err = db.Model(&models.User{}).Count(&userCount).Error
	assert.NoError(t, err)
	assert.Greater(t, userCount, int64(0))

	var deviceCount int64
	err = db.Model(&models.Device{}).Count(&deviceCount).Error
	assert.NoError(t, err)
	assert.Equal(t, int64(1), deviceCount)

	prefs := int64(0)
	err = db.Model(&models.UserPreference{}).Count(&prefs).Error
	assert.NoError(t, err)
	assert.Greater(t, prefs, int64(0))
}

func TestSeedService_SeedAll_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	service := SeedService{db: db}

	require.NoError(t, service.SeedAll())

	var userCount, deviceCount, prefCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.NoError(t, db.Model(&models.Device{}).Count(&deviceCount).Error)
	require.NoError(t, db.Model(&models.UserPreference{}).Count(&prefCount).Error)

	// 再跑一遍不能产生重复数据
	require.NoError(t, service.SeedAll())

	var newUserCount, newDeviceCount, newPrefCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&newUserCount).Error)
	require.NoError(t, db.Model(&models.Device{}).Count(&newDeviceCount).Error)
	require.NoError(t, db.Model(&models.UserPreference{}).Count(&newPrefCount).Error)

	assert.Equal(t, userCount, newUserCount)
	assert.Equal(t, deviceCount, newDeviceCount)
	assert.Equal(t, prefCount, newPrefCount)
}

func TestSeedService_seedDemoUser(t *testing.T) {
	db := setupTestDB(t)
	service := SeedService{db: db}

	err := service.seedDemoUser()
	assert.NoError(t, err)

	user, err := models.GetUserByEmail(db, demoUserEmail)
	require.NoError(t, err)
	assert.True(t, user.Enabled)
	assert.Equal(t, models.RoleUser, user.Role)

	// 密码只存哈希
	assert.NotEqual(t, demoUserPassword, user.Password)
	assert.True(t, models.CheckPassword(user, demoUserPassword))
}

func TestSeedService_seedDemoDevices(t *testing.T) {
	db := setupTestDB(t)
	service := SeedService{db: db}

	require.NoError(t, service.seedDemoUser())
	require.NoError(t, service.seedDemoDevices())

	user, err := models.GetUserByEmail(db, demoUserEmail)
	require.NoError(t, err)

	device, err := models.GetDeviceByID(db, demoDeviceID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, device.UserID)
	assert.NotEqual(t, demoDeviceToken, device.TokenHash)

	// 种子令牌能通过设备鉴权
	_, err = models.ValidateDeviceToken(db, demoDeviceID, demoDeviceToken)
	assert.NoError(t, err)
}

func TestSeedService_seedDemoPreferences_KeepsUserEdits(t *testing.T) {
	db := setupTestDB(t)
	service := SeedService{db: db}

	require.NoError(t, service.SeedAll())

	user, err := models.GetUserByEmail(db, demoUserEmail)
	require.NoError(t, err)

	// 用户改过的偏好重跑种子不能被覆盖
	require.NoError(t, models.SetPreference(db, user.ID, "preferred_city", "上海"))
	require.NoError(t, service.seedDemoPreferences())

	city, err := models.GetPreference(db, user.ID, "preferred_city")
	require.NoError(t, err)
	assert.Equal(t, "上海", city)
}

func TestSeedService_DatabaseError(t *testing.T) {
	// 不建表，所有种子操作都应报错而不是崩
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	service := SeedService{db: db}

	err = service.seedDemoUser()
	assert.Error(t, err)

	err = service.seedDemoDevices()
	assert.Error(t, err)

	err = service.SeedAll()
	assert.Error(t, err)
}

func TestSeedAllowed(t *testing.T) {
	originalEnv := os.Getenv("APP_ENV")
	defer os.Setenv("APP_ENV", originalEnv)

	testCases := []struct {
		env      string
		expected bool
	}{
		{"", true},
		{"test", true},
		{"development", true},
		{"staging", true},
		{"production", false},
	}

	for _, tc := range testCases {
		t.Run("env_"+tc.env, func(t *testing.T) {
			os.Setenv("APP_ENV", tc.env)
			assert.Equal(t, tc.expected, seedAllowed())
		})
	}
}

// Benchmark tests
func BenchmarkSeedService_SeedAll(b *testing.B) {
	for i := 0; i < b.N; i++ {
		db := setupTestDB(b)
		service := SeedService{db: db}

		b.StartTimer()
		err := service.SeedAll()
		b.StopTimer()

		if err != nil {
			b.Fatal(err)
		}
	}
}

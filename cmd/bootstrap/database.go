// Package bootstrap 进程启动期的初始化：数据库连接、建表、种子数据与启动横幅。
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// Options 数据库初始化选项
type Options struct {
	InitSQLPath string // 首次部署要执行的 SQL 文件，留空跳过
	AutoMigrate bool
	SeedNonProd bool // 生产环境下忽略
}

// SetupDatabase 打开数据库连接，按选项执行初始化 SQL、建表与开发种子数据。
// w 接收 GORM 的 SQL 日志。
func SetupDatabase(w io.Writer, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{AutoMigrate: true}
	}

	db, err := initDBConn(w)
	if err != nil {
		return nil, err
	}

	if opts.InitSQLPath != "" {
		if err := RunInitSQL(db, opts.InitSQLPath); err != nil {
			return nil, err
		}
	}

	if opts.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			return nil, err
		}
	}

	if opts.SeedNonProd && seedAllowed() {
		seeder := SeedService{db: db}
		if err := seeder.SeedAll(); err != nil {
			return nil, err
		}
	}

	logger.Info("[Bootstrap] 数据库就绪",
		zap.String("driver", config.GlobalConfig.Database.Driver),
		zap.Bool("migrated", opts.AutoMigrate),
	)
	return db, nil
}

// seedAllowed 种子数据永远不进生产库
func seedAllowed() bool {
	return os.Getenv("APP_ENV") != "production"
}

func initDBConn(w io.Writer) (*gorm.DB, error) {
	if w == nil {
		w = os.Stdout
	}
	gormCfg := &gorm.Config{
		Logger: glogger.New(log.New(w, "\r\n", log.LstdFlags), glogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  glogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	dbCfg := config.GlobalConfig.Database
	db, err := openByDriver(gormCfg, dbCfg.Driver, dbCfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func openByDriver(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		db, err := gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}

		// 统一 utf8mb4，避免 utf8mb4_0900_ai_ci 与 utf8mb3_general_ci 排序规则不一致
		_, err = sqlDB.Exec("SET NAMES utf8mb4 COLLATE utf8mb4_unicode_ci")
		if err != nil {
			// 部分 MySQL 版本不支持该语法，退回兼容写法
			_, _ = sqlDB.Exec("SET NAMES utf8mb4")
		}

		return db, nil
	case "pg", "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	if dsn == "" {
		dsn = "file::memory:"
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// RunInitSQL 执行初始化 SQL 文件。支持 -- 与 # 行注释，语句按分号拆分。
func RunInitSQL(db *gorm.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	count := 0
	for _, stmt := range strings.Split(sb.String(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("init sql statement %d: %w", count+1, err)
		}
		count++
	}
	if count > 0 {
		logger.Info("[Bootstrap] 初始化 SQL 执行完成",
			zap.String("path", path),
			zap.Int("statements", count),
		)
	}
	return nil
}

// RunMigrations 建表
func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}
	return models.Migrate(db)
}

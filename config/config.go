package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（任务锁）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BillingConfig 学费计算配置
type BillingConfig struct {
	RoundingUnit          int64 `mapstructure:"rounding_unit"`        // 金额截断单位（韩元）
	DefaultDueDay         int   `mapstructure:"default_due_day"`      // 学院未设置时的缴费日
	DueDateSearchDays     int   `mapstructure:"due_date_search_days"` // 缴费日向后寻找上课日的天数
	ExcludeClosedSlots    bool  `mapstructure:"exclude_closed_slots"` // 休课时段是否不计入上课日
	TrialDefaultCount     int   `mapstructure:"trial_default_count"`
	ManualCreditMaxClass  int   `mapstructure:"manual_credit_max_classes"`
	ManualCreditMinAmount int64 `mapstructure:"manual_credit_min_amount"`
	ManualCreditMaxAmount int64 `mapstructure:"manual_credit_max_amount"`
}

// ScheduleConfig 课表分配配置
type ScheduleConfig struct {
	DefaultTimeSlot    string `mapstructure:"default_time_slot"`
	AssignWindowMonths int    `mapstructure:"assign_window_months"` // 从起始日所在月起分配的月数
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Timezone           string        `mapstructure:"timezone"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	ClassDaysSpec      string        `mapstructure:"class_days_spec"`
	TrialExpireSpec    string        `mapstructure:"trial_expire_spec"`
	MonthlyAssignSpec  string        `mapstructure:"monthly_assign_spec"`
	ExcusedCreditSpec  string        `mapstructure:"excused_credit_spec"`
	GradePromotionSpec string        `mapstructure:"grade_promotion_spec"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "paca")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Seoul")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "") // 必须通过配置文件或 PACA_AUTH_JWT_SECRET 提供
	v.SetDefault("auth.access_token_ttl", "12h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("billing.rounding_unit", 1000)
	v.SetDefault("billing.default_due_day", 5)
	v.SetDefault("billing.due_date_search_days", 7)
	v.SetDefault("billing.exclude_closed_slots", false)
	v.SetDefault("billing.trial_default_count", 2)
	v.SetDefault("billing.manual_credit_max_classes", 12)
	v.SetDefault("billing.manual_credit_min_amount", 1000)
	v.SetDefault("billing.manual_credit_max_amount", 10000000)

	v.SetDefault("schedule.default_time_slot", "evening")
	v.SetDefault("schedule.assign_window_months", 1)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "Asia/Seoul")
	v.SetDefault("scheduler.lock_ttl", "30m")
	v.SetDefault("scheduler.class_days_spec", "5 0 * * *")
	v.SetDefault("scheduler.trial_expire_spec", "5 0 * * *")
	v.SetDefault("scheduler.monthly_assign_spec", "5 0 1 * *")
	v.SetDefault("scheduler.excused_credit_spec", "0 23 * * *")
	v.SetDefault("scheduler.grade_promotion_spec", "0 1 1 1 *")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("PACA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Billing.RoundingUnit <= 0 {
		return fmt.Errorf("配置校验失败: billing.rounding_unit 必须大于 0")
	}
	if c.Billing.DefaultDueDay < 1 || c.Billing.DefaultDueDay > 31 {
		return fmt.Errorf("配置校验失败: billing.default_due_day 必须在 1-31 之间")
	}
	switch c.Schedule.DefaultTimeSlot {
	case "morning", "afternoon", "evening":
	default:
		return fmt.Errorf("配置校验失败: schedule.default_time_slot 无效: %q", c.Schedule.DefaultTimeSlot)
	}
	if c.Schedule.AssignWindowMonths < 1 {
		return fmt.Errorf("配置校验失败: schedule.assign_window_months 不能小于 1")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("配置校验失败: scheduler.timezone 无效: %w", err)
	}
	return nil
}

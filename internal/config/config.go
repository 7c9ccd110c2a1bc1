package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env      string `json:"env"`       // 运行环境: local / prod
	LogLevel string `json:"log_level"` // 日志级别: debug / info / warn / error
	HTTPAddr string `json:"http_addr"` // API 服务监听地址

	SweepInterval time.Duration `json:"sweep_interval"` // 草稿发布扫描间隔（如 "1h"）
	DraftMaxAge   time.Duration `json:"draft_max_age"`  // 草稿超过该时长自动发布（如 "720h"）

	VerifyCodeTTL  time.Duration `json:"verify_code_ttl"` // 邮箱验证码有效期
	ResendCooldown time.Duration `json:"resend_cooldown"` // 验证码重发冷却时间

	PopularMinRatings int `json:"popular_min_ratings"` // 热门菜谱最少评分数
	PopularLimit      int `json:"popular_limit"`       // 热门列表条数
	FeaturedLimit     int `json:"featured_limit"`      // 精选列表条数
	PageSize          int `json:"page_size"`           // 列表默认分页大小
	MaxPageSize       int `json:"max_page_size"`       // 列表分页上限

	MailWorkers       int `json:"mail_workers"`        // 邮件发送 worker 数
	MailQueueCapacity int `json:"mail_queue_capacity"` // 邮件队列容量
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置（验证码与频控）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件发送配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // JWT 签名密钥
}

// Load 从 JSON 文件加载配置。
//
// 配置文件不存在时使用默认值；环境变量永远优先于文件内容。
//
// 参数:
//
//	configPath: 配置文件路径（为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，失败时回退到默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":8080",

			SweepInterval: 1 * time.Hour,
			DraftMaxAge:   30 * 24 * time.Hour,

			// 原始实现的注释同时出现过 2 分钟与 24 小时两个说法，
			// 这里统一为显式配置项，默认 2 分钟。
			VerifyCodeTTL:  2 * time.Minute,
			ResendCooldown: 60 * time.Second,

			PopularMinRatings: 3,
			PopularLimit:      10,
			FeaturedLimit:     10,
			PageSize:          20,
			MaxPageSize:       100,

			MailWorkers:       4,
			MailQueueCapacity: 64,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/culinary_canvas?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.SweepInterval == 0 {
		cfg.App.SweepInterval = defaults.App.SweepInterval
	}
	if cfg.App.DraftMaxAge == 0 {
		cfg.App.DraftMaxAge = defaults.App.DraftMaxAge
	}
	if cfg.App.VerifyCodeTTL == 0 {
		cfg.App.VerifyCodeTTL = defaults.App.VerifyCodeTTL
	}
	if cfg.App.ResendCooldown == 0 {
		cfg.App.ResendCooldown = defaults.App.ResendCooldown
	}
	if cfg.App.PopularMinRatings == 0 {
		cfg.App.PopularMinRatings = defaults.App.PopularMinRatings
	}
	if cfg.App.PopularLimit == 0 {
		cfg.App.PopularLimit = defaults.App.PopularLimit
	}
	if cfg.App.FeaturedLimit == 0 {
		cfg.App.FeaturedLimit = defaults.App.FeaturedLimit
	}
	if cfg.App.PageSize == 0 {
		cfg.App.PageSize = defaults.App.PageSize
	}
	if cfg.App.MaxPageSize == 0 {
		cfg.App.MaxPageSize = defaults.App.MaxPageSize
	}
	if cfg.App.MailWorkers == 0 {
		cfg.App.MailWorkers = defaults.App.MailWorkers
	}
	if cfg.App.MailQueueCapacity == 0 {
		cfg.App.MailQueueCapacity = defaults.App.MailQueueCapacity
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SweepInterval = d
		}
	}
	if v := os.Getenv("APP_DRAFT_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.DraftMaxAge = d
		}
	}
	if v := os.Getenv("APP_VERIFY_CODE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.VerifyCodeTTL = d
		}
	}
	if v := os.Getenv("APP_RESEND_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ResendCooldown = d
		}
	}
	if v := os.Getenv("APP_POPULAR_MIN_RATINGS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.PopularMinRatings = i
		}
	}
	if v := os.Getenv("APP_MAIL_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MailWorkers = i
		}
	}
	if v := os.Getenv("APP_MAIL_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MailQueueCapacity = i
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		parsed.Passwd = viper.GetString("db_password")
		if u := os.Getenv("DB_USER"); u != "" {
			parsed.User = u
		}
		if n := os.Getenv("DB_NAME"); n != "" {
			parsed.DBName = n
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "culinary_canvas",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串（如 "30m"、"720h"）。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		SweepInterval  string `json:"sweep_interval"`
		DraftMaxAge    string `json:"draft_max_age"`
		VerifyCodeTTL  string `json:"verify_code_ttl"`
		ResendCooldown string `json:"resend_cooldown"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	set := func(raw string, dst *time.Duration, field string) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", field, err)
		}
		*dst = d
		return nil
	}

	if err := set(aux.SweepInterval, &a.SweepInterval, "sweep_interval"); err != nil {
		return err
	}
	if err := set(aux.DraftMaxAge, &a.DraftMaxAge, "draft_max_age"); err != nil {
		return err
	}
	if err := set(aux.VerifyCodeTTL, &a.VerifyCodeTTL, "verify_code_ttl"); err != nil {
		return err
	}
	if err := set(aux.ResendCooldown, &a.ResendCooldown, "resend_cooldown"); err != nil {
		return err
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 输出为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		SweepInterval  string `json:"sweep_interval"`
		DraftMaxAge    string `json:"draft_max_age"`
		VerifyCodeTTL  string `json:"verify_code_ttl"`
		ResendCooldown string `json:"resend_cooldown"`
		*Alias
	}{
		SweepInterval:  a.SweepInterval.String(),
		DraftMaxAge:    a.DraftMaxAge.String(),
		VerifyCodeTTL:  a.VerifyCodeTTL.String(),
		ResendCooldown: a.ResendCooldown.String(),
		Alias:          (*Alias)(&a),
	})
}

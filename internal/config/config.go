package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Speed    SpeedConfig    `mapstructure:"speed"`
	Log      LogConfig      `mapstructure:"log"`
	DataDir  string         `mapstructure:"data_dir"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
}

// RabbitMQConfig 变更信号队列配置（可选，供外部日志处理器推送）
type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

// CacheConfig 缓存日志源配置
type CacheConfig struct {
	LogDirs           []string `mapstructure:"log_dirs"`            // 每个目录下监控 access.log
	DataSources       []string `mapstructure:"data_sources"`        // 配置的数据源标签，与 log_dirs 一一对应
	SessionGapSeconds int      `mapstructure:"session_gap_seconds"` // 同一下载会话允许的最大空闲间隔
}

// SpeedConfig 速度快照配置
type SpeedConfig struct {
	WindowSeconds       int `mapstructure:"window_seconds"`        // 滑动窗口长度
	BroadcastIntervalMs int `mapstructure:"broadcast_interval_ms"` // 快照广播间隔
	PollIntervalMs      int `mapstructure:"poll_interval_ms"`      // 日志轮询间隔
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// 环境变量覆盖（支持嵌套配置）
	viper.AutomaticEnv()

	// 绑定环境变量到嵌套配置路径
	// RabbitMQ
	viper.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	viper.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	viper.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	viper.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	viper.BindEnv("database.host", "MYSQL_HOST")
	viper.BindEnv("database.port", "MYSQL_PORT")
	viper.BindEnv("database.user", "MYSQL_USER")
	viper.BindEnv("database.password", "MYSQL_PASS")
	viper.BindEnv("database.db_name", "MYSQL_DB")

	// 数据目录（docker 部署时常用环境变量指定）
	viper.BindEnv("data_dir", "DATA_DIR")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults 填充缺省值，保证零配置也能启动
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Cache.SessionGapSeconds <= 0 {
		cfg.Cache.SessionGapSeconds = 300
	}
	if cfg.Speed.WindowSeconds <= 0 {
		cfg.Speed.WindowSeconds = 2
	}
	if cfg.Speed.BroadcastIntervalMs <= 0 {
		cfg.Speed.BroadcastIntervalMs = 500
	}
	if cfg.Speed.PollIntervalMs <= 0 {
		cfg.Speed.PollIntervalMs = 100
	}
}

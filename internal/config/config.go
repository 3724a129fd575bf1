package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// PortalConfig 校园电费门户相关地址与查询参数
type PortalConfig struct {
	CASLoginURL  string        `mapstructure:"cas_login_url"` // CAS统一身份认证登录页面（带service回调）
	CASBaseURL   string        `mapstructure:"cas_base_url"`  // CAS站点根地址，用于解析相对表单action
	EpayBaseURL  string        `mapstructure:"epay_base_url"` // 一卡通服务平台根地址
	BillPageURL  string        `mapstructure:"bill_page_url"` // 电费查询页面
	QueryURL     string        `mapstructure:"query_url"`     // 电费AJAX查询接口
	SysID        string        `mapstructure:"sysid"`         // 电控系统编号
	RoomNo       string        `mapstructure:"room_no"`       // 房间编号
	ElcArea      string        `mapstructure:"elcarea"`       // 校区编号
	ElcBuis      string        `mapstructure:"elcbuis"`       // 楼栋编号
	Timeout      time.Duration `mapstructure:"timeout"`       // 门户请求超时
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"` // 会话探测请求超时
}

// QueryConfig 查询节流与异常重查参数
type QueryConfig struct {
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"` // 手动查询全局最小间隔
	RetryDelay       time.Duration `mapstructure:"retry_delay"`       // 异常数据重查前等待时间
	RetryAcceptDiff  float64       `mapstructure:"retry_accept_diff"` // 重查结果替换原值所需的最小差值
	AnomalyWindow    time.Duration `mapstructure:"anomaly_window"`    // 异常检测回看窗口
	AnomalyMaxDrop   float64       `mapstructure:"anomaly_max_drop"`  // 窗口内允许的最大减少量（度）
}

// SessionConfig 用户会话上限与过期时间
type SessionConfig struct {
	MaxUsers int           `mapstructure:"max_users"`
	Expire   time.Duration `mapstructure:"expire"`
}

type BackupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Portal   PortalConfig   `mapstructure:"portal"`
	Query    QueryConfig    `mapstructure:"query"`
	Session  SessionConfig  `mapstructure:"session"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

var (
	appConfig *Config
	once      sync.Once
)

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty, it defaults to "config.yaml" in current working directory.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		v := viper.New()

		if path == "" {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
		} else {
			v.SetConfigFile(path)
		}

		// environment overrides, e.g. ELEC_SERVER_PORT=9000
		v.SetEnvPrefix("ELEC")
		v.AutomaticEnv()

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			err = fmt.Errorf("read config: %w", err)
			return
		}

		var c Config
		if err = v.Unmarshal(&c); err != nil {
			err = fmt.Errorf("unmarshal config: %w", err)
			return
		}

		appConfig = &c
	})

	if err != nil {
		return nil, err
	}
	return appConfig, nil
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("database.path", "data/electricity.db")
	v.SetDefault("log.file", "logs/server.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("portal.timeout", 15*time.Second)
	v.SetDefault("portal.probe_timeout", 10*time.Second)
	v.SetDefault("query.throttle_interval", 30*time.Second)
	v.SetDefault("query.retry_delay", 5*time.Second)
	v.SetDefault("query.retry_accept_diff", 0.1)
	v.SetDefault("query.anomaly_window", 30*time.Minute)
	v.SetDefault("query.anomaly_max_drop", 1.0)
	v.SetDefault("session.max_users", 5)
	v.SetDefault("session.expire", 7*24*time.Hour)
	v.SetDefault("backup.retention_days", 14)
}

package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fixkme/bgtimer/errs"
)

var Config *AppConfig

type AppConfig struct {
	AppName      string `json:"app_name" mapstructure:"app_name"`
	AppVersion   string `json:"app_version" mapstructure:"app_version"`
	TimeOffset   int64  `json:"time_offset" mapstructure:"time_offset"` // 墙上时间偏移 毫秒, 影响redis截止时间
	LogConfig    `json:",inline" mapstructure:",inline"`
	WakeupConfig `json:",inline" mapstructure:",inline"`
	RedisConfig  `json:",inline" mapstructure:",inline"`
	LoopConfig   `json:",inline" mapstructure:",inline"`
	IsDebug      bool `json:"is_debug" mapstructure:"is_debug"`
}

type LogConfig struct {
	LogPath   string `json:"log_path" mapstructure:"log_path"` // 为空时只输出到标准输出
	LogName   string `json:"log_name" mapstructure:"log_name"`
	LogLevel  string `json:"log_level" mapstructure:"log_level"`
	LogStdOut bool   `json:"log_std_out" mapstructure:"log_std_out"`
	LogZap    bool   `json:"log_zap" mapstructure:"log_zap"` // 用zap输出json到标准输出
}

type WakeupConfig struct {
	WakeupKind     string `json:"wakeup_kind" mapstructure:"wakeup_kind"`           // wheel runtime single redis
	TaskQueueSize  int    `json:"task_queue_size" mapstructure:"task_queue_size"`   // 调度协程任务队列
	FiredBuffer    int    `json:"fired_buffer" mapstructure:"fired_buffer"`         // 到期通知缓冲
	PollIntervalMs int    `json:"poll_interval_ms" mapstructure:"poll_interval_ms"` // redis轮询间隔 毫秒
	BatchSize      int    `json:"batch_size" mapstructure:"batch_size"`             // redis单次认领数量
	Namespace      string `json:"namespace" mapstructure:"namespace"`               // redis key前缀
}

type RedisConfig struct {
	RedisMode       string `json:"redis_mode" mapstructure:"redis_mode"`
	RedisAddr       string `json:"redis_addr" mapstructure:"redis_addr"` // 多个地址用,隔开
	RedisMasterName string `json:"redis_master_name" mapstructure:"redis_master_name"`
	RedisPassword   string `json:"redis_password" mapstructure:"redis_password"`
	RedisDB         int    `json:"redis_db" mapstructure:"redis_db"`
}

type LoopConfig struct {
	LoopDelayMs int64 `json:"loop_delay_ms" mapstructure:"loop_delay_ms"` // 固定延迟循环, 0不启用
	IntervalMs  int64 `json:"interval_ms" mapstructure:"interval_ms"`     // 补偿漂移的周期定时器, 0不启用
}

func (c *WakeupConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	Config = new(AppConfig)
	if len(configFile) == 0 {
		if loadConfigFromEnv == nil {
			return nil
		}
		return loadConfigFromEnv(Config)
	}
	if err := loadConfigFromFile(configFile); err != nil {
		return err
	}
	if loadConfigFromEnv != nil {
		return loadConfigFromEnv(Config)
	}
	return nil
}

func loadConfigFromFile(configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, &Config); err != nil {
		return errs.InvalidConfig.Wrap(err)
	}
	return nil
}

// DefaultEnvLoader BGTIMER_前缀的环境变量覆盖文件配置
func DefaultEnvLoader(conf *AppConfig) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("BGTIMER_" + key); ok {
			*dst = v
		}
	}
	var bad []string
	num := func(key string, set func(n int64)) {
		v, ok := os.LookupEnv("BGTIMER_" + key)
		if !ok {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			bad = append(bad, key)
			return
		}
		set(n)
	}

	flag := func(key string, dst *bool) {
		v, ok := os.LookupEnv("BGTIMER_" + key)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			bad = append(bad, key)
			return
		}
		*dst = b
	}

	str("LOG_PATH", &conf.LogPath)
	str("LOG_NAME", &conf.LogName)
	str("LOG_LEVEL", &conf.LogLevel)
	flag("LOG_ZAP", &conf.LogZap)
	flag("LOG_STD_OUT", &conf.LogStdOut)
	str("WAKEUP_KIND", &conf.WakeupKind)
	str("NAMESPACE", &conf.Namespace)
	str("REDIS_MODE", &conf.RedisMode)
	str("REDIS_ADDR", &conf.RedisAddr)
	str("REDIS_MASTER_NAME", &conf.RedisMasterName)
	str("REDIS_PASSWORD", &conf.RedisPassword)
	num("REDIS_DB", func(n int64) { conf.RedisDB = int(n) })
	num("TASK_QUEUE_SIZE", func(n int64) { conf.TaskQueueSize = int(n) })
	num("FIRED_BUFFER", func(n int64) { conf.FiredBuffer = int(n) })
	num("POLL_INTERVAL_MS", func(n int64) { conf.PollIntervalMs = int(n) })
	num("BATCH_SIZE", func(n int64) { conf.BatchSize = int(n) })
	num("TIME_OFFSET", func(n int64) { conf.TimeOffset = n })
	num("LOOP_DELAY_MS", func(n int64) { conf.LoopDelayMs = n })
	num("INTERVAL_MS", func(n int64) { conf.IntervalMs = n })
	if len(bad) > 0 {
		return errs.InvalidConfig.Printf("bad env: %s", strings.Join(bad, ","))
	}
	return nil
}

// Validate 检查取值范围
func (conf *AppConfig) Validate() error {
	switch strings.ToLower(conf.WakeupKind) {
	case "", "wheel", "runtime", "single":
	case "redis":
		if conf.RedisAddr == "" {
			return errs.InvalidConfig.Printf("redis wakeup needs redis_addr")
		}
	default:
		return errs.InvalidConfig.Printf("unknown wakeup_kind %q", conf.WakeupKind)
	}
	switch conf.RedisMode {
	case "", "single", "sentinel", "cluster":
	default:
		return errs.InvalidConfig.Printf("unknown redis_mode %q", conf.RedisMode)
	}
	if conf.RedisMode == "sentinel" && conf.RedisMasterName == "" {
		return errs.InvalidConfig.Printf("sentinel mode needs redis_master_name")
	}
	if conf.TaskQueueSize < 0 || conf.FiredBuffer < 0 || conf.PollIntervalMs < 0 || conf.BatchSize < 0 {
		return errs.InvalidConfig.Printf("negative wakeup option")
	}
	if conf.LoopDelayMs < 0 || conf.IntervalMs < 0 {
		return errs.InvalidConfig.Printf("negative loop option")
	}
	return nil
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

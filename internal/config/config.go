package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// BackendConfig 后端账务服务（唯一事实源）
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ChainConfig 链上 RPC 节点
type ChainConfig struct {
	RPCURL                 string `mapstructure:"rpc_url"`
	ConfirmTimeoutSeconds  int    `mapstructure:"confirm_timeout_seconds"`
	ConfirmIntervalSeconds int    `mapstructure:"confirm_interval_seconds"`
}

// AgentConfig 外部签名代理（钱包），私钥永远不经过本进程
type AgentConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type RedisConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Password           string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	SnapshotTTLSeconds int    `mapstructure:"snapshot_ttl_seconds"`
}

type BusinessConfig struct {
	PageSize              int `mapstructure:"page_size"`
	DebounceSeconds       int `mapstructure:"debounce_seconds"`
	PollIntervalSeconds   int `mapstructure:"poll_interval_seconds"`
	ReconcileDelaySeconds int `mapstructure:"reconcile_delay_seconds"`
}

func (c *BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *ChainConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

func (c *ChainConfig) ConfirmInterval() time.Duration {
	return time.Duration(c.ConfirmIntervalSeconds) * time.Second
}

func (c *AgentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *BusinessConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

func (c *BusinessConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *BusinessConfig) ReconcileDelay() time.Duration {
	return time.Duration(c.ReconcileDelaySeconds) * time.Second
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	return config
}

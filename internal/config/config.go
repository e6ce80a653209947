package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Site     SiteConfig     `mapstructure:"site"`
	AI       AIConfig       `mapstructure:"ai"`
	Tools    ToolsConfig    `mapstructure:"tools"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	StaticDir    string        `mapstructure:"static_dir"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// DatabaseConfig SQLite 配置
type DatabaseConfig struct {
	DataDir string `mapstructure:"data_dir"` // 数据目录
	Path    string `mapstructure:"path"`     // 数据库文件路径
}

// RedisConfig Redis 配置（会话变量存储）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`      // Cookie 签名密钥
	CookieName string        `mapstructure:"cookie_name"` // Cookie 名称
	Expiry     time.Duration `mapstructure:"expiry"`      // 会话过期时间
	Secure     bool          `mapstructure:"secure"`      // 仅 HTTPS 发送 Cookie
}

// SMTPConfig 邮件发送配置
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SiteConfig 站点配置（邮件链接和前端配置使用）
type SiteConfig struct {
	HostnameWithScheme string `mapstructure:"hostname_with_scheme"` // 例如 https://chat.example.com
	Name               string `mapstructure:"name"`                 // 站点名称
	UseMathJax         bool   `mapstructure:"use_mathjax"`          // 前端是否启用 MathJax
}

// AIConfig AI 服务配置
type AIConfig struct {
	DefaultModel  string                    `mapstructure:"default_model"`  // 默认模型
	Providers     map[string]ProviderConfig `mapstructure:"providers"`      // Provider 名称 -> 后端配置
	Models        map[string]string         `mapstructure:"models"`         // 模型名 -> Provider 名称
	ToolModels    []string                  `mapstructure:"tool_models"`    // 允许调用工具的模型列表
	StreamTimeout time.Duration             `mapstructure:"stream_timeout"` // 单次流式调用超时
	Title         TitleConfig               `mapstructure:"title"`          // 对话标题生成配置
}

// ProviderConfig 模型后端配置（OpenAI 兼容 API）
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// TitleConfig 对话标题生成配置（非流式调用）
type TitleConfig struct {
	Provider string `mapstructure:"provider"` // openai/azure/ark，留空表示禁用
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ToolsConfig 工具配置
type ToolsConfig struct {
	// 前端回调工具（POST /tools/{tool}）启用的工具名
	Callbacks []string `mapstructure:"callbacks"`
	// Python 代码执行命令模板，{filename} 会被替换为脚本路径；为空表示禁用
	PythonExecTemplate string `mapstructure:"python_exec_template"`
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Session.Secret == "" {
		return errors.New("session secret is required")
	}

	for model, providerName := range c.AI.Models {
		if _, ok := c.AI.Providers[providerName]; !ok {
			return errors.New("model " + model + " references unknown provider " + providerName)
		}
	}

	return nil
}

package provider

import (
	"errors"
	"sort"

	"quince/internal/config"
)

// ErrModelNotConfigured 模型名不在配置中
var ErrModelNotConfigured = errors.New("model is not configured")

// Registry 模型注册表：模型名 -> 后端配置
// 配置在进程启动时一次性加载，之后只读，无需加锁
type Registry struct {
	providers map[string]config.ProviderConfig
	models    map[string]string
	def       string
}

// NewRegistry 创建模型注册表
func NewRegistry(cfg *config.AIConfig) *Registry {
	return &Registry{
		providers: cfg.Providers,
		models:    cfg.Models,
		def:       cfg.DefaultModel,
	}
}

// Resolve 解析模型名对应的后端配置
func (r *Registry) Resolve(model string) (config.ProviderConfig, error) {
	providerName, ok := r.models[model]
	if !ok {
		return config.ProviderConfig{}, ErrModelNotConfigured
	}

	pc, ok := r.providers[providerName]
	if !ok {
		return config.ProviderConfig{}, ErrModelNotConfigured
	}

	return pc, nil
}

// ModelNames 返回所有已配置的模型名（排序保证输出稳定）
func (r *Registry) ModelNames() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultModel 默认模型名
func (r *Registry) DefaultModel() string {
	return r.def
}

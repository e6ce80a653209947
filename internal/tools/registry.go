package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"quince/internal/model"
)

var (
	// ErrToolNotFound 工具名未注册
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvocationFailed 工具执行失败
	ErrInvocationFailed = errors.New("tool invocation failed")
)

// Func 工具的本地实现，参数为解析后的 JSON 对象
type Func func(ctx context.Context, args map[string]any) (string, error)

// Tool 一个可供模型调用的工具：声明 + 实现
type Tool struct {
	Declaration model.ToolDeclaration
	Call        Func
}

// Registry 工具注册表
// 启动时静态注册，按名称查找，未知名称返回类型化错误
// 启动后只读，无需加锁
type Registry struct {
	tools      map[string]Tool
	order      []string
	toolModels map[string]bool
}

// NewRegistry 创建工具注册表
// toolModels 是允许调用工具的模型白名单
func NewRegistry(toolModels []string) *Registry {
	models := make(map[string]bool, len(toolModels))
	for _, m := range toolModels {
		models[m] = true
	}
	return &Registry{
		tools:      make(map[string]Tool),
		toolModels: models,
	}
}

// Register 注册一个工具，重名时覆盖
func (r *Registry) Register(t Tool) {
	name := t.Declaration.Function.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Enabled 模型是否允许调用工具
// 要求：全局注册了至少一个工具，且模型在白名单里
func (r *Registry) Enabled(modelName string) bool {
	return len(r.tools) > 0 && r.toolModels[modelName]
}

// Declarations 所有工具声明（发给 Provider 的 tools 字段）
func (r *Registry) Declarations() []model.ToolDeclaration {
	decls := make([]model.ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration)
	}
	return decls
}

// Invoke 按名称执行工具
// 未注册返回 ErrToolNotFound；参数解析失败、执行出错或 panic
// 都归入 ErrInvocationFailed，由调用方决定如何呈现给用户
func (r *Registry) Invoke(ctx context.Context, name, argsJSON string) (result string, err error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	args := make(map[string]any)
	if argsJSON != "" {
		if jsonErr := json.Unmarshal([]byte(argsJSON), &args); jsonErr != nil {
			return "", fmt.Errorf("%w: invalid arguments for %s: %v", ErrInvocationFailed, name, jsonErr)
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("tool", name).Interface("panic", rec).Msg("tool panicked")
			err = fmt.Errorf("%w: %s: %v", ErrInvocationFailed, name, rec)
		}
	}()

	log.Info().Str("tool", name).RawJSON("args", jsonOrEmpty(argsJSON)).Msg("executing tool")

	result, callErr := tool.Call(ctx, args)
	if callErr != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvocationFailed, name, callErr)
	}

	return result, nil
}

func jsonOrEmpty(argsJSON string) []byte {
	if json.Valid([]byte(argsJSON)) {
		return []byte(argsJSON)
	}
	return []byte("{}")
}

package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"quince/internal/config"
)

// CallbackFunc 前端回调工具的实现（POST /tools/{tool}）
// 入参是请求的 JSON 对象，返回展示给用户的文本
type CallbackFunc func(ctx context.Context, data map[string]any) string

// CallbackRegistry 前端回调工具注册表
// 与模型工具分开：这些工具由浏览器直接触发，不经过 Provider
type CallbackRegistry struct {
	callbacks map[string]CallbackFunc
}

// NewCallbackRegistry 按配置启用回调工具
func NewCallbackRegistry(cfg *config.ToolsConfig) *CallbackRegistry {
	available := map[string]CallbackFunc{
		"python": pythonExec(cfg.PythonExecTemplate),
	}

	callbacks := make(map[string]CallbackFunc)
	for _, name := range cfg.Callbacks {
		if fn, ok := available[name]; ok {
			callbacks[name] = fn
		} else {
			log.Warn().Str("tool", name).Msg("unknown callback tool in config, skipping")
		}
	}

	return &CallbackRegistry{callbacks: callbacks}
}

// Lookup 按名称查找回调工具
func (r *CallbackRegistry) Lookup(name string) (CallbackFunc, bool) {
	fn, ok := r.callbacks[name]
	return fn, ok
}

// Names 启用的回调工具名（前端配置接口使用）
func (r *CallbackRegistry) Names() []string {
	names := make([]string, 0, len(r.callbacks))
	for name := range r.callbacks {
		names = append(names, name)
	}
	return names
}

// pythonExec 通过命令模板在子进程里执行 Python 代码
// 模板中的 {filename} 会被替换为临时脚本路径，建议指向沙箱容器
func pythonExec(template string) CallbackFunc {
	return func(ctx context.Context, data map[string]any) string {
		if template == "" {
			return "<strong>The server is not configured to execute Python code</strong>"
		}

		text, _ := data["text"].(string)
		code := strings.TrimSpace(text)

		tmp, err := os.CreateTemp("", "quince-exec-*.py")
		if err != nil {
			return err.Error()
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.WriteString(code); err != nil {
			tmp.Close()
			return err.Error()
		}
		tmp.Close()

		command := strings.ReplaceAll(template, "{filename}", tmp.Name())

		execCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(execCtx, "sh", "-c", command)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		returnCode := 0
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			returnCode = exitErr.ExitCode()
		} else if runErr != nil {
			return runErr.Error()
		}

		var outputPart string
		if stdout.Len() > 0 {
			outputPart = fmt.Sprintf("<strong>Output: </strong><pre>%s</pre>", stdout.String())
		} else {
			outputPart = "<strong>Output:</strong><pre>No output</pre>"
		}

		var errorPart string
		if stderr.Len() > 0 {
			errorPart = fmt.Sprintf("<strong>Error: </strong><pre>%s</pre>", stderr.String())
		} else {
			errorPart = "<strong>Status: </strong><pre>Script executed successfully</pre>"
		}

		return fmt.Sprintf("%s%s<strong>Return code: </strong>%d", outputPart, errorPart, returnCode)
	}
}

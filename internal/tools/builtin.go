package tools

import (
	"context"
	"fmt"

	"quince/internal/model"
)

// RegisterBuiltins 注册内置工具
func RegisterBuiltins(r *Registry) {
	r.Register(AddTwoNumbers())
	r.Register(GetWeather())
}

// AddTwoNumbers 两数相加
func AddTwoNumbers() Tool {
	return Tool{
		Declaration: model.ToolDeclaration{
			Type: "function",
			Function: model.ToolFunction{
				Name:        "add_two_numbers",
				Description: "Add two numbers",
				Parameters: map[string]any{
					"type":     "object",
					"required": []string{"a", "b"},
					"properties": map[string]any{
						"a": map[string]any{"type": "integer", "description": "The first number"},
						"b": map[string]any{"type": "integer", "description": "The second number"},
					},
				},
			},
		},
		Call: func(ctx context.Context, args map[string]any) (string, error) {
			a, err := numberArg(args, "a")
			if err != nil {
				return "", err
			}
			b, err := numberArg(args, "b")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("The result of adding %v and %v is: %v", a, b, a+b), nil
		},
	}
}

// GetWeather 查询天气（示例实现）
func GetWeather() Tool {
	return Tool{
		Declaration: model.ToolDeclaration{
			Type: "function",
			Function: model.ToolFunction{
				Name:        "get_weather",
				Description: "Fetches the current weather for a given location",
				Parameters: map[string]any{
					"type":     "object",
					"required": []string{"location"},
					"properties": map[string]any{
						"location": map[string]any{"type": "string", "description": "The name of the city or region"},
					},
				},
			},
		},
		Call: func(ctx context.Context, args map[string]any) (string, error) {
			location, ok := args["location"].(string)
			if !ok || location == "" {
				return "", fmt.Errorf("missing argument: location")
			}
			return fmt.Sprintf("Weather in %s is sunny 25°C", location), nil
		},
	}
}

// numberArg 读取数值参数（JSON 数字解析为 float64）
func numberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument: %s", key)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %s is not a number", key)
	}
	return n, nil
}

package http

// ErrorResponse 错误响应（绑定/参数类错误使用）
type ErrorResponse struct {
	Code    int    `json:"code"`             // 错误码（非0表示错误）
	Message string `json:"message"`          // 错误消息
	Detail  string `json:"detail,omitempty"` // 错误详情（可选）
}

// JSONResult 业务校验结果（用户流程统一返回 {error, message}）
type JSONResult struct {
	Error   bool   `json:"error"`
	Message string `json:"message,omitempty"`
}

// OK 无错误的业务结果
func OK(message string) JSONResult {
	return JSONResult{Error: false, Message: message}
}

// Fail 业务校验失败结果
func Fail(message string) JSONResult {
	return JSONResult{Error: true, Message: message}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/rushteam/recserve/core"
)

// ErrorBody 是所有错误响应的结构。Message 只包含面向调用方的描述，不含内部细节。
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON 以 application/json 写出 v。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf 把领域错误类别映射为 HTTP 状态码。
func statusOf(err error) int {
	switch core.KindOf(err) {
	case core.ErrorCodeInvalidInput:
		return http.StatusBadRequest
	case core.ErrorCodeNotFound:
		return http.StatusNotFound
	case core.ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 写出错误响应。只有 INVALID_INPUT 会回显领域错误的描述。
func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	body := ErrorBody{Error: kindName(err)}
	switch status {
	case http.StatusBadRequest:
		if de := core.GetDomainError(err); de != nil {
			body.Message = de.Message
		} else {
			body.Message = "invalid request"
		}
	case http.StatusNotFound:
		body.Message = "resource not found"
	case http.StatusServiceUnavailable:
		body.Message = "service temporarily unavailable"
	default:
		body.Message = "internal server error"
	}
	writeJSON(w, status, body)
}

func kindName(err error) string {
	switch core.KindOf(err) {
	case core.ErrorCodeInvalidInput:
		return "invalid_input"
	case core.ErrorCodeNotFound:
		return "not_found"
	case core.ErrorCodeUnavailable:
		return "upstream_unavailable"
	case core.ErrorCodeNotSupported:
		return "unsupported_capability"
	default:
		return "internal"
	}
}

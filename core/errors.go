package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型，错误分类（Code）与来源模块（Module）分离
//   - 可以包装底层原因（Cause），通过 errors.Is / errors.As 透传
//   - 传输层只依据 Code 决定响应，Message 与 Cause 不对外暴露
//
// 错误分类：
//   - NOT_FOUND：批量任务 ID 不存在（用户/商品不存在不是错误，而是空结果）
//   - NOT_SUPPORTED：算法不支持某个可选能力（训练/增量更新/评估）
//   - UNAVAILABLE：存储或缓存后端不可达
//   - INVALID_INPUT：limit 非法、算法版本未知等
//   - INTERNAL_ERROR：算法执行失败等内部错误
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "NOT_SUPPORTED"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "cache", "algorithm"）
	Cause   error  // 底层原因，可为空
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is 让同 Module + Code 的哨兵错误可以用 errors.Is 匹配。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Module == t.Module
}

// IsDomainError 检查错误链上是否有 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链上的第一个 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装了底层原因的领域错误
func WrapDomainError(module, code, message string, cause error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 能力不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 上游不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore     = "store"     // KV 存储
	ModuleDocStore  = "docstore"  // 文档存储
	ModuleCache     = "cache"     // 推荐缓存
	ModuleAlgorithm = "algorithm" // 打分算法
	ModuleProvider  = "provider"  // 用户/商品数据
	ModuleService   = "service"   // 推荐编排
	ModuleBatch     = "batch"     // 批量任务
)

// 常用哨兵错误
var (
	// ErrCapabilityNotSupported 表示算法变体不支持某个可选能力
	ErrCapabilityNotSupported = NewDomainError(ModuleAlgorithm, ErrorCodeNotSupported, "algorithm: capability not supported")

	// ErrJobNotFound 表示批量任务不存在
	ErrJobNotFound = NewDomainError(ModuleBatch, ErrorCodeNotFound, "batch: job not found")
)

// KindOf 返回错误链上 DomainError 的 Code；非领域错误统一视为 INTERNAL_ERROR。
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code
	}
	return ErrorCodeInternalError
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// InvalidInput 是构造 INVALID_INPUT 错误的便捷函数。
func InvalidInput(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidInput, fmt.Sprintf(format, args...))
}

// Unavailable 是构造 UNAVAILABLE 错误的便捷函数。
func Unavailable(module, message string, cause error) *DomainError {
	return WrapDomainError(module, ErrorCodeUnavailable, message, cause)
}

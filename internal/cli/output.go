package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// 退出码
const (
	ExitSuccess      = 0 // 成功
	ExitFailure      = 1 // 场景失败或校验不通过
	ExitCommandError = 2 // 命令错误：路径不存在、配置无效等
)

// ExitError 携带退出码的错误
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError 创建带退出码的错误
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError 用退出码包装已有的错误
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode 从错误中取出退出码，不是ExitError时返回ExitFailure
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter 按text或json格式输出命令结果
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // 诊断输出，json模式下避免破坏标准输出
	Verbose   bool
}

// CLIResponse json模式下的统一响应
type CLIResponse struct {
	Status string      `json:"status"` // "ok" | "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError json模式下的错误详情
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// 错误码
const (
	CodeLoad       = "E001" // 读取或解码失败
	CodeInvalid    = "E002" // 场景校验失败
	CodeFailed     = "E003" // 场景输出不匹配
	CodeBadMarbles = "E004" // 弹珠图语法错误
)

// IsJSON 是否为json输出
func (f *OutputFormatter) IsJSON() bool {
	return f.Format == "json"
}

// Success 输出成功结果，text模式下由text给出人类可读的内容
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer)) error {
	if f.IsJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Error 输出错误
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.IsJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog 仅在verbose模式下输出诊断信息
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// Kind 业务错误类别，Handler 层据此映射 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindSecurity // 跨学院数据访问等安全类硬错误
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindSecurity:
		return "security"
	default:
		return "internal"
	}
}

// AppError 带类别与业务码的错误
type AppError struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *AppError) Error() string { return e.Message }

func NewValidation(code int, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

func NewNotFound(code int, message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: message}
}

func NewConflict(code int, message string) *AppError {
	return &AppError{Kind: KindConflict, Code: code, Message: message}
}

func NewSecurity(code int, message string) *AppError {
	return &AppError{Kind: KindSecurity, Code: code, Message: message}
}

// KindOf 返回错误链中第一个 AppError 的类别，未找到时为 KindInternal
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrOptimisticLock) {
		return KindConflict
	}
	return KindInternal
}

// As 提取错误链中的 AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

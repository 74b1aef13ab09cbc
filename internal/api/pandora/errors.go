package pandora

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse 响应不符合预期格式
	ErrMalformedResponse = errors.New("malformed response")

	// ErrAuthentication 认证类错误的根哨兵
	ErrAuthentication = errors.New("authentication error")

	// ErrSessionExpired 会话过期或从未认证
	ErrSessionExpired = fmt.Errorf("session expired: %w", ErrAuthentication)

	// ErrInvalidAccessToken 令牌格式不合法
	ErrInvalidAccessToken = fmt.Errorf("invalid access token: %w", ErrAuthentication)

	// ErrMissingAccessToken 对象上没有可用令牌
	ErrMissingAccessToken = fmt.Errorf("missing access token: %w", ErrInvalidAccessToken)
)

// StatusError 服务端以状态文本描述的业务失败
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string {
	return e.Status
}

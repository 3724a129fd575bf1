package portal

import (
	"errors"
	"fmt"
)

// AuthError CAS握手或凭据错误，调用方不做自动重试。
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// QueryErrorKind 查询失败的分类，决定上层是否清会话、是否重试。
type QueryErrorKind int

const (
	// KindSessionExpired 门户侧会话已失效，需要重新认证
	KindSessionExpired QueryErrorKind = iota + 1
	// KindTransport 网络或超时错误
	KindTransport
	// KindMalformed 门户返回了无法解析的数据
	KindMalformed
	// KindPortal 门户返回了业务错误（非会话问题），不重试
	KindPortal
)

func (k QueryErrorKind) String() string {
	switch k {
	case KindSessionExpired:
		return "session_expired"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed_response"
	case KindPortal:
		return "portal_error"
	}
	return "unknown"
}

// QueryError 电费查询失败。
type QueryError struct {
	Kind QueryErrorKind
	Msg  string
	Err  error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("query (%s): %s", e.Kind, e.Msg)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsSessionExpired reports whether err indicates the portal session stopped working.
func IsSessionExpired(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Kind == KindSessionExpired
}

// IsAuthError reports whether err is a credential or handshake failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

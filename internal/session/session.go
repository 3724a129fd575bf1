// Package session 管理应用层登录状态与门户认证会话。
// 两者共用同一身份键（客户端IP），但生命周期独立：
// 用户会话被清除或淘汰时必须级联清除对应的门户会话。
package session

import "time"

// LoginMethod 登录方式
type LoginMethod string

const (
	MethodPassword LoginMethod = "password"
	MethodQRCode   LoginMethod = "qrcode"
)

// User 应用层登录状态（UserSession）。
// 密码登录时保留凭据原文，供定时任务及会话失效后重新认证使用；
// 凭据只存于内存，进程退出即消失。
type User struct {
	Identity     string
	IsLoggedIn   bool
	LoginTime    string
	LoginMethod  LoginMethod
	Username     string
	Password     string
	LastActivity time.Time
}

// HasCredentials reports whether this session can re-authenticate on its own.
func (u *User) HasCredentials() bool {
	return u.LoginMethod == MethodPassword && u.Username != "" && u.Password != ""
}

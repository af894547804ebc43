package errors

// Kind 错误类别，决定默认业务码与 HTTP 状态码
type Kind uint8

const (
	KindInternal       Kind = iota // 内部错误
	KindConfiguration              // 配置/注册错误（启动期）
	KindAuthentication             // 认证失败
	KindAuthorization              // 鉴权失败
	KindDecode                     // 入站数据解码失败
)

// String 返回类别名称
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindDecode:
		return "decode"
	default:
		return "internal"
	}
}

// httpCode 返回类别对应的默认 HTTP 状态码
func (k Kind) httpCode() int {
	switch k {
	case KindAuthentication:
		return 401
	case KindAuthorization:
		return 403
	case KindDecode:
		return 400
	default:
		return 500
	}
}

// code 返回类别对应的默认业务错误码
func (k Kind) code() int {
	switch k {
	case KindConfiguration:
		return 1001
	case KindAuthentication:
		return 1002
	case KindAuthorization:
		return 1003
	case KindDecode:
		return 1004
	default:
		return 1000
	}
}

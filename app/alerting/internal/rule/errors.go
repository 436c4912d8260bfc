package rule

import "github.com/cockroachdb/errors"

var (
	// ErrMalformedRule 规则表结构或取值非法
	ErrMalformedRule = errors.New("malformed rule")

	// ErrAttributeType 事实属性类型与条件不兼容
	ErrAttributeType = errors.New("attribute type mismatch")

	// ErrInvalidVersion 规则表版本号不是合法语义版本
	ErrInvalidVersion = errors.New("invalid rule table version")

	// ErrStaleVersion 新注册的版本不高于当前版本
	ErrStaleVersion = errors.New("rule table version is not newer than current")

	// ErrVersionNotFound 告警记录的规则版本未注册
	ErrVersionNotFound = errors.New("rule table version not registered")
)

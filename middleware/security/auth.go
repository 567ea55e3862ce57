package security

import (
	"net/http"
	"strings"

	errs "EPresence/tools/errs"

	"github.com/gin-gonic/gin"
)

type Options struct {
	Token                     string // 期望的 admin token；为空 => 放行
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions(token string) *Options {
	return &Options{
		Token:                     token,
		HeaderToken:               "authorization",
		EnableAuthorizationBearer: true,
	}
}

// Middleware /admin 接口的 bearer token 校验
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions("")
	}
	return func(c *gin.Context) {
		if opts.Token == "" {
			c.Next()
			return
		}

		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		if token != opts.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}

		c.Next()
	}
}

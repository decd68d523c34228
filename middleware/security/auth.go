package security

import (
	"net/http"
	"strings"

	"QChat/global"
	"QChat/tools/errs"
	sec "QChat/tools/security"

	"github.com/gin-gonic/gin"
)

// CtxUserIDKey holds the authenticated user id for downstream handlers.
const CtxUserIDKey = "authUserId"

type Options struct {
	Secret                    []byte
	EnableAuthorizationBearer bool // accept Authorization: Bearer xxx
}

func DefaultOptions() *Options {
	return &Options{
		Secret:                    global.GetJwtSecret(),
		EnableAuthorizationBearer: true,
	}
}

// Middleware verifies the bearer token and stores the caller identity in
// the gin context. The read path uses the same verification as the
// websocket handshake, so both surfaces agree on who the caller is.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	jwtOpts := sec.DefaultOptions(opts.Secret)

	return func(c *gin.Context) {
		// header lookup is case-insensitive, so this also covers a
		// lowercase "authorization" carrying a bare token
		token := strings.TrimSpace(c.GetHeader("Authorization"))
		if opts.EnableAuthorizationBearer {
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[len("bearer "):])
			}
		}

		userID, err := sec.Verify(jwtOpts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
			return
		}
		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

// UserID reads the identity the middleware stored.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

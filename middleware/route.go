package middleware

import (
	midsec "QChat/middleware/security"

	"github.com/gin-gonic/gin"
)

type RouteOpt struct {
	IsAuth bool
}

func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.GET(path, midsec.Middleware(midsec.DefaultOptions()), handler)
	} else {
		r.GET(path, handler)
	}
}

func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.POST(path, midsec.Middleware(midsec.DefaultOptions()), handler)
	} else {
		r.POST(path, handler)
	}
}

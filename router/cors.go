package router

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	allowOriginHeader      = "Access-Control-Allow-Origin"
	allowHeadersHeader     = "Access-Control-Allow-Headers"
	allowMethodsHeader     = "Access-Control-Allow-Methods"
	requestMethodHeader    = "Access-Control-Request-Method"
	allowCredentialsHeader = "Access-Control-Allow-Credentials"
	maxAgeHeader           = "Access-Control-Max-Age"
)

// Cors configures the bridge's cross-origin policy; the zero value allows
// every origin, which suits a local development proxy.
type Cors struct {
	AllowOrigins     []string `yaml:"AllowOrigins,omitempty"`
	AllowHeaders     []string `yaml:"AllowHeaders,omitempty"`
	AllowCredentials *bool    `yaml:"AllowCredentials,omitempty"`
	MaxAge           *int64   `yaml:"MaxAge,omitempty"`
}

func (c *Cors) originMap() map[string]bool {
	result := make(map[string]bool)
	for _, origin := range c.AllowOrigins {
		result[origin] = true
	}
	return result
}

func (c *Cors) setHeaders(writer http.ResponseWriter, request *http.Request) {
	origin := request.Header.Get("Origin")
	allowed := c.originMap()
	if len(allowed) == 0 || allowed["*"] {
		if origin == "" {
			writer.Header().Set(allowOriginHeader, "*")
		} else {
			writer.Header().Set(allowOriginHeader, origin)
		}
	} else if origin != "" && allowed[origin] {
		writer.Header().Set(allowOriginHeader, origin)
	}
	headers := strings.Join(c.AllowHeaders, ", ")
	if headers == "" || headers == "*" {
		headers = "Content-Type, Authorization"
	}
	writer.Header().Set(allowHeadersHeader, headers)
	if c.AllowCredentials != nil {
		writer.Header().Set(allowCredentialsHeader, strconv.FormatBool(*c.AllowCredentials))
	}
	if c.MaxAge != nil {
		writer.Header().Set(maxAgeHeader, strconv.FormatInt(*c.MaxAge, 10))
	}
}

// corsMiddleware sets CORS headers on every response and short-circuits
// OPTIONS preflight.
func corsMiddleware(cors *Cors) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			cors.setHeaders(writer, request)
			if request.Method == http.MethodOptions {
				if method := request.Header.Get(requestMethodHeader); method != "" {
					writer.Header().Set(allowMethodsHeader, method)
				} else {
					writer.Header().Set(allowMethodsHeader, "GET, POST, OPTIONS")
				}
				writer.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

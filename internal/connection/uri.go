package connection

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rjnmav/mongoscope/internal/types"
)

// BuildURI constructs a MongoDB URI from a connection config. Manual string
// building avoids url.Parse query-param roundtrip issues. Credentials use
// url.UserPassword().String() for proper RFC 3986 userinfo encoding.
func BuildURI(cfg types.ConnectionConfig) string {
	var b strings.Builder
	b.WriteString("mongodb://")

	if cfg.Username != "" {
		if cfg.Password != "" {
			b.WriteString(url.UserPassword(cfg.Username, cfg.Password).String())
		} else {
			b.WriteString(url.User(cfg.Username).String())
		}
		b.WriteByte('@')
	}

	b.WriteString(formatHost(cfg.Host, cfg.Port))
	b.WriteByte('/')
	b.WriteString(cfg.DefaultDatabase)

	var params []string
	addParam := func(key, value string) {
		params = append(params, key+"="+value)
	}

	if cfg.Username != "" && cfg.AuthSource != "" && cfg.AuthSource != "admin" {
		addParam("authSource", url.PathEscape(cfg.AuthSource))
	}
	if cfg.TLSEnabled {
		addParam("tls", "true")
	}
	if cfg.ConnectTimeout > 0 {
		addParam("connectTimeoutMS", fmt.Sprintf("%d", cfg.ConnectTimeout.Milliseconds()))
	}

	if len(params) > 0 {
		b.WriteByte('?')
		b.WriteString(strings.Join(params, "&"))
	}

	return b.String()
}

// formatHost formats a host:port pair, handling IPv6 addresses.
func formatHost(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}

	// Omit default port
	if port == 27017 || port == 0 {
		return host
	}
	return fmt.Sprintf("%s:%d", host, port)
}

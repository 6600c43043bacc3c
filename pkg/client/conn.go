package client

import (
	"fmt"
	"strings"
)

// connScheme is the prefix every CortexDB connection string carries.
const connScheme = "cortexdb://"

// ConnInfo is a parsed connection string.
type ConnInfo struct {
	BaseURL string
	APIKey  string
}

// ParseConnString parses "cortexdb://[api_key@]host[:port]". The base URL
// uses https when the port is 443, the host contains "cortexdb.com", or the
// host is not a loopback literal; default ports are omitted.
func ParseConnString(s string) (ConnInfo, error) {
	rest, ok := strings.CutPrefix(s, connScheme)
	if !ok {
		return ConnInfo{}, fmt.Errorf("connection string must start with %q", connScheme)
	}

	var apiKey string
	if strings.Contains(rest, "@") {
		parts := strings.Split(rest, "@")
		if len(parts) != 2 {
			return ConnInfo{}, fmt.Errorf("invalid connection string %q", s)
		}
		apiKey, rest = parts[0], parts[1]
	}

	host := rest
	var port string
	if i := strings.Index(rest, ":"); i >= 0 {
		host, port = rest[:i], rest[i+1:]
	}
	if host == "" {
		return ConnInfo{}, fmt.Errorf("connection string %q has no host", s)
	}

	secure := port == "443" ||
		strings.Contains(host, "cortexdb.com") ||
		(!strings.HasPrefix(host, "localhost") && !strings.HasPrefix(host, "127."))

	scheme := "http"
	if secure {
		scheme = "https"
	}

	baseURL := scheme + "://" + host
	if port != "" && !(port == "443" && secure) && !(port == "80" && !secure) {
		baseURL += ":" + port
	}
	return ConnInfo{BaseURL: baseURL, APIKey: apiKey}, nil
}

package highlight

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// URLKey normalizes a page URL into the key highlights are scoped by: scheme,
// host and path. Query, fragment and user info are dropped, scheme and host
// are lowercased, default ports are removed and a trailing slash is trimmed
// except on the root path. A bare path such as "/reports/q3" is accepted.
func URLKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalid)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %v", ErrInvalid, err)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	if u.Host == "" {
		if u.Scheme != "" || u.Opaque != "" {
			return "", fmt.Errorf("%w: url %q has no host", ErrInvalid, raw)
		}
		return path, nil
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}

	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		// IPv6 literal without a port.
		host = "[" + host + "]"
	}

	return scheme + "://" + host + path, nil
}

// Package origin implements the browser Origin policy shared by the HTTP API
// and the WebSocket upgrade.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Wildcard in an allow list admits any origin.
const Wildcard = "*"

// NormalizeHeader validates a browser Origin header and returns it as
// scheme://host[:port] (lowercase, default port dropped) together with the
// host[:port] part used for same-host comparisons.
//
// The opaque origin "null" is accepted and returned as-is with an empty host.
func NormalizeHeader(raw string) (normalized, host string, ok bool) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.Opaque != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = normalizeHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// IsAllowed reports whether a normalized origin may talk to requestHost.
//
// A non-empty allow list is matched exactly (or via Wildcard). An empty list
// means same host only: the origin's host[:port] must equal the request Host.
// Scheme is ignored there because TLS is commonly terminated by a proxy in
// front of the service.
func IsAllowed(normalizedOrigin, originHost, requestHost string, allowed []string) bool {
	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == Wildcard || a == normalizedOrigin {
				return true
			}
		}
		return false
	}

	scheme, _, found := strings.Cut(normalizedOrigin, "://")
	if !found || originHost == "" {
		return false
	}
	reqHost, ok := normalizeHost(requestHost, scheme)
	return ok && reqHost == originHost
}

// Policy applies IsAllowed to incoming requests.
type Policy struct {
	allowed []string
}

func NewPolicy(allowed []string) Policy {
	return Policy{allowed: append([]string(nil), allowed...)}
}

// AllowsAny reports whether the allow list contains Wildcard.
func (p Policy) AllowsAny() bool {
	for _, a := range p.allowed {
		if a == Wildcard {
			return true
		}
	}
	return false
}

// Check returns the normalized Origin of r and whether it is allowed.
// Requests without an Origin header (curl, native clients) are allowed.
func (p Policy) Check(r *http.Request) (normalized string, ok bool) {
	raw := strings.TrimSpace(r.Header.Get("Origin"))
	if raw == "" {
		return "", true
	}
	normalized, host, valid := NormalizeHeader(raw)
	if !valid {
		return "", false
	}
	return normalized, IsAllowed(normalized, host, r.Host, p.allowed)
}

// AllowOrigin is Check for callers that already extracted the Origin value,
// such as CORS middleware.
func (p Policy) AllowOrigin(r *http.Request, rawOrigin string) bool {
	normalized, host, valid := NormalizeHeader(rawOrigin)
	if !valid {
		return false
	}
	return IsAllowed(normalized, host, r.Host, p.allowed)
}

func normalizeHost(rawHost, scheme string) (string, bool) {
	rawHost = strings.ToLower(strings.TrimSpace(rawHost))
	if rawHost == "" {
		return "", false
	}

	var hostname, port string
	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
				return "", false
			}
			port = rest[1:]
		}
	} else {
		switch strings.Count(rawHost, ":") {
		case 0:
			hostname = rawHost
		case 1:
			hostname, port, _ = strings.Cut(rawHost, ":")
			if port == "" {
				return "", false
			}
		default:
			// unbracketed IPv6
			return "", false
		}
	}
	if hostname == "" {
		return "", false
	}

	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			port = ""
		} else {
			port = strconv.FormatUint(n, 10)
		}
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return host, true
}

package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// Key namespaces. Endpoint-derived keys live under NamespaceAPI; keys built
// from a resource name and id use the resource as their namespace.
const (
	NamespaceAPI = "api"
)

// EndpointKey derives the cache key for a GET of endpoint. The path always
// starts with a slash and query parameters are re-encoded in sorted order, so
// the same logical request always maps to the same key.
func EndpointKey(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return NamespaceAPI + ":" + endpoint
	}
	canonical := "/" + strings.TrimLeft(u.Path, "/")
	if u.Host != "" {
		canonical = "//" + u.Host + canonical
	}
	if q := u.Query(); len(q) > 0 {
		canonical += "?" + q.Encode()
	}
	return NamespaceAPI + ":" + canonical
}

// ResourceKey builds "<resource>:<id>", e.g. ResourceKey("course", 42).
func ResourceKey(resource string, id any) string {
	return fmt.Sprintf("%s:%v", resource, id)
}

// Namespace returns the part of key before the first colon.
func Namespace(key string) string {
	ns, _, found := strings.Cut(key, ":")
	if !found {
		return ""
	}
	return ns
}

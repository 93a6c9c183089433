package cache_test

import (
	"testing"

	"github.com/guarzo/platformapi/modules/cache"
)

func TestEndpointKey(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"/contests?limit=10", "api:/contests?limit=10"},
		{"/contests?offset=20&limit=10", "api:/contests?limit=10&offset=20"},
		{"/contests?limit=10&offset=20", "api:/contests?limit=10&offset=20"},
		{"/stats", "api:/stats"},
		{"courses/42", "api:/courses/42"},
		{"/courses/42", "api:/courses/42"},
	}
	for _, tt := range tests {
		if got := cache.EndpointKey(tt.endpoint); got != tt.want {
			t.Errorf("EndpointKey(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestResourceKeyAndNamespace(t *testing.T) {
	key := cache.ResourceKey("course", 42)
	if key != "course:42" {
		t.Errorf("unexpected key %q", key)
	}
	if ns := cache.Namespace(key); ns != "course" {
		t.Errorf("unexpected namespace %q", ns)
	}
	if ns := cache.Namespace(cache.EndpointKey("/stats")); ns != cache.NamespaceAPI {
		t.Errorf("unexpected namespace %q", ns)
	}
	if ns := cache.Namespace("plain"); ns != "" {
		t.Errorf("expected no namespace, got %q", ns)
	}
}

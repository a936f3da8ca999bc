package cmd

import "testing"

func TestDefaultFeatureName(t *testing.T) {
	cases := map[string]string{
		"graph.json":               "graph",
		"/repo/docs/checkout.yaml": "checkout",
		"feature-123.yml":          "feature-123",
	}
	for path, want := range cases {
		if got := defaultFeatureName(path); got != want {
			t.Errorf("defaultFeatureName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestContainerdReachable_MissingSocket(t *testing.T) {
	if containerdReachable("") {
		t.Error("containerdReachable(\"\") should be false")
	}
	if containerdReachable("/no/such/socket") {
		t.Error("containerdReachable() should be false for a nonexistent path")
	}
}

package patternmatch

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"user:123", "user:123", true},
		{"user:123", "user:124", false},
		{"users:*", "users:42", true},
		{"users:*", "accounts:42", false},
		{"*", "anything", true},
		{"user:*:profile", "user:42:profile", true},
		{"user:*:profile", "user:42:settings", false},
		{"user:?", "user:7", true},
		{"user:?", "user:77", false},
	}
	for _, tt := range tests {
		got, err := Match(tt.pattern, tt.key)
		if err != nil {
			t.Fatalf("Match(%q, %q): %v", tt.pattern, tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}

func TestMatchEmptyPatternIsError(t *testing.T) {
	if _, err := Match("", "key"); err == nil {
		t.Fatal("expected an error for an empty pattern")
	}
}

func TestFilterKeys(t *testing.T) {
	keys := []string{"trades:AAA", "trades:BBB", "portfolio:1"}
	got, err := FilterKeys("trades:*", keys)
	if err != nil {
		t.Fatalf("FilterKeys: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
}

func TestRegexCacheGrowsOncePerPattern(t *testing.T) {
	ClearCache()
	for i := 0; i < 3; i++ {
		if _, err := Match("user:*:profile", "user:1:profile"); err != nil {
			t.Fatalf("Match: %v", err)
		}
	}
	if n := CacheSize(); n != 1 {
		t.Fatalf("expected 1 cached regex after repeated matches of one pattern, got %d", n)
	}
}

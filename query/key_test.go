package query

import "testing"

func TestBuildKey_SubstitutesPlaceholders(t *testing.T) {
	key := BuildKey("trades:{symbol}:{page}", "trades", []string{"symbol", "page"}, map[string]string{"symbol": "AAA", "page": "2"})
	if key != "trades:AAA:2" {
		t.Fatalf("expected trades:AAA:2, got %q", key)
	}
}

func TestBuildKey_UnboundPlaceholderStaysLiteral(t *testing.T) {
	key := BuildKey("trades:{symbol}:{page}", "trades", []string{"symbol"}, map[string]string{"symbol": "AAA"})
	if key != "trades:AAA:{page}" {
		t.Fatalf("expected the unbound placeholder to stay literal, got %q", key)
	}
}

func TestBuildKey_IsDeterministic(t *testing.T) {
	params := map[string]string{"symbol": "AAA", "page": "1"}
	a := BuildKey("trades:{symbol}:{page}", "trades", []string{"symbol", "page"}, params)
	b := BuildKey("trades:{symbol}:{page}", "trades", []string{"symbol", "page"}, params)
	if a != b {
		t.Fatalf("expected identical inputs to produce identical keys: %q vs %q", a, b)
	}
}

func TestBuildPattern_AllPlaceholdersPresent(t *testing.T) {
	pattern := BuildPattern("trades:{symbol}*", map[string]string{"symbol": "AAA"})
	if pattern != "trades:AAA*" {
		t.Fatalf("expected trades:AAA*, got %q", pattern)
	}
}

func TestBuildPattern_NoPlaceholdersPassesThrough(t *testing.T) {
	pattern := BuildPattern("trades:*", map[string]string{"symbol": "AAA"})
	if pattern != "trades:*" {
		t.Fatalf("expected the literal pattern untouched, got %q", pattern)
	}
}

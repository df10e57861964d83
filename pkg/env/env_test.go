package env

import "testing"

func TestGetFallsBackWhenUnset(t *testing.T) {
	t.Setenv("CHARITYCONNECT_TEST_VALUE", "")
	if got := Get("CHARITYCONNECT_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("CHARITYCONNECT_TEST_VALUE", " console ")
	if got := Get("CHARITYCONNECT_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("CHARITYCONNECT_TEST_FLAG", "yes")
	if !GetBool("CHARITYCONNECT_TEST_FLAG", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("CHARITYCONNECT_TEST_FLAG", "nope")
	if !GetBool("CHARITYCONNECT_TEST_FLAG", true) {
		t.Fatalf("expected fallback for unparsable value")
	}
}

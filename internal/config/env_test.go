package config

import "testing"

func TestEnvStringFallsBack(t *testing.T) {
	if got := EnvString("ADDRESS", "0.0.0.0:3000"); got != "0.0.0.0:3000" {
		t.Fatalf("got %q", got)
	}
	t.Setenv("GRAZE_ADDRESS", "127.0.0.1:8080")
	if got := EnvString("ADDRESS", "0.0.0.0:3000"); got != "127.0.0.1:8080" {
		t.Fatalf("got %q", got)
	}
}

func TestEnvBoolParses(t *testing.T) {
	if got, err := EnvBool("SIMULATE", false); err != nil || got {
		t.Fatalf("got %v err %v", got, err)
	}
	t.Setenv("GRAZE_SIMULATE", "true")
	if got, err := EnvBool("SIMULATE", false); err != nil || !got {
		t.Fatalf("got %v err %v", got, err)
	}
	t.Setenv("GRAZE_SIMULATE", "maybe")
	if _, err := EnvBool("SIMULATE", false); err == nil {
		t.Fatal("expected parse error")
	}
}

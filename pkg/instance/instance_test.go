package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("WORKER_ID", "claim-worker-7")
	if got := GetID(); got != "claim-worker-7" {
		t.Fatalf("expected env worker id, got %q", got)
	}
}

func TestGetIDStableWithinProcess(t *testing.T) {
	t.Setenv("WORKER_ID", "")
	first := GetID()
	if first == "" {
		t.Fatal("expected generated id")
	}
	if second := GetID(); second != first {
		t.Fatalf("expected stable id, got %q then %q", first, second)
	}
}

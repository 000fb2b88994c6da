package adapter

import (
	"os"
	"testing"
)

func TestEnvSetAdapter_RollbackRestoresPriorValue(t *testing.T) {
	const name = "SENTINELGATE_ADAPTER_TEST_VAR"
	os.Setenv(name, "original")
	defer os.Unsetenv(name)

	a := EnvSetAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"name": name, "value": "changed"}

	if _, err := a.Execute(args, ctx); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv(name); got != "changed" {
		t.Fatalf("expected changed value, got %q", got)
	}

	if _, err := a.Rollback(args, ctx); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv(name); got != "original" {
		t.Fatalf("expected restored original value, got %q", got)
	}
}

func TestEnvSetAdapter_RollbackUnsetsPreviouslyUnsetVar(t *testing.T) {
	const name = "SENTINELGATE_ADAPTER_TEST_VAR_UNSET"
	os.Unsetenv(name)

	a := EnvSetAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"name": name, "value": "x"}

	if _, err := a.Execute(args, ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Rollback(args, ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := os.LookupEnv(name); ok {
		t.Fatalf("expected variable to be unset after rollback")
	}
}

func TestEnvGetAdapter_ExecuteMissingVar(t *testing.T) {
	os.Unsetenv("SENTINELGATE_ADAPTER_TEST_MISSING")
	a := EnvGetAdapter{}
	res, err := a.Execute(map[string]any{"name": "SENTINELGATE_ADAPTER_TEST_MISSING"}, &Context{})
	if err != nil || res.Success {
		t.Fatalf("expected failure for unset variable, got %v %+v", err, res)
	}
}

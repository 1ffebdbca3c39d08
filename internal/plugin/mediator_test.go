package plugin

import (
	"context"
	"testing"
)

func TestRuntimeRef_UpgradeAndClear(t *testing.T) {
	rt := &Runtime{}
	ref := newRuntimeRef(rt)

	got, ok := ref.upgrade()
	if !ok || got != rt {
		t.Fatalf("upgrade() = (%v, %v), want (%v, true)", got, ok, rt)
	}

	ref.clear()

	if _, ok := ref.upgrade(); ok {
		t.Fatal("upgrade() after clear() = true, want false")
	}
}

func TestDependencyChainFrom_EmptyByDefault(t *testing.T) {
	if chain := dependencyChainFrom(context.Background()); chain != nil {
		t.Errorf("dependencyChainFrom(bare context) = %v, want nil", chain)
	}
}

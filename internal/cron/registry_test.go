package cron

import (
	"testing"
)

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	sweep := &testJob{name: "orphan-sweep"}
	retention := &testJob{name: "outbox-retention"}
	registry, err := NewRegistry(sweep, retention)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != sweep || jobs[1] != retention {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] != sweep {
		t.Fatal("Jobs must return a copy")
	}
}

func TestRegistryRejectsBadJobs(t *testing.T) {
	tests := map[string][]Job{
		"nil job":        {nil},
		"blank name":     {&testJob{name: "  "}},
		"duplicate name": {&testJob{name: "orphan-sweep"}, &testJob{name: "orphan-sweep"}},
	}
	for name, jobs := range tests {
		if _, err := NewRegistry(jobs...); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNilRegistryHasNoJobs(t *testing.T) {
	var registry *Registry
	if jobs := registry.Jobs(); len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %v", jobs)
	}
}

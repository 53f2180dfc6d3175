package models_test

import (
	"testing"

	"rapidsprite/pkg/timeline"
)

func mustTime(t *testing.T, s string) timeline.Time {
	t.Helper()
	v, err := timeline.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", s, err)
	}
	return v
}

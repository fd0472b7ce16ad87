package engine

import (
	"testing"
	"time"
)

func TestLimitsValidate(t *testing.T) {
	valid := Limits{
		MemoryBytes:    1 << 20,
		Duration:       time.Second,
		MaxRecursion:   64,
		MaxAllocations: 10000,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v for fully specified limits", err)
	}

	cases := []struct {
		name   string
		mutate func(*Limits)
	}{
		{"zero memory", func(l *Limits) { l.MemoryBytes = 0 }},
		{"negative memory", func(l *Limits) { l.MemoryBytes = -1 }},
		{"zero duration", func(l *Limits) { l.Duration = 0 }},
		{"zero recursion", func(l *Limits) { l.MaxRecursion = 0 }},
		{"zero allocations", func(l *Limits) { l.MaxAllocations = 0 }},
	}
	for _, tc := range cases {
		l := valid
		tc.mutate(&l)
		if err := l.Validate(); err == nil {
			t.Errorf("%s: Validate() accepted %+v", tc.name, l)
		}
	}
}

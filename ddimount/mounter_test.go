// SPDX-License-Identifier: GPL-2.0-only

package ddimount

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestReadProductVersionParsesMajor(t *testing.T) {
	cases := []struct {
		raw       interface{}
		wantMajor int
		wantErr   bool
	}{
		{"16.5", 16, false},
		{"17.0.1", 17, false},
		{"9", 9, false},
		{"", 0, true},
		{42, 0, true},
	}
	for _, c := range cases {
		lockdown := &fakeLockdown{values: map[string]interface{}{"ProductVersion": c.raw}}
		_, major, err := readProductVersion(lockdown)
		if c.wantErr {
			if err == nil {
				t.Errorf("readProductVersion(%v): expected error, got major=%d", c.raw, major)
			}
			continue
		}
		if err != nil {
			t.Errorf("readProductVersion(%v): unexpected error %v", c.raw, err)
			continue
		}
		if major != c.wantMajor {
			t.Errorf("readProductVersion(%v) major = %d, want %d", c.raw, major, c.wantMajor)
		}
	}
}

type fakeLockdown struct {
	values     map[string]interface{}
	pairCalled bool
}

func (l *fakeLockdown) GetValue(domain, key string) (interface{}, error) {
	v, ok := l.values[key]
	if !ok {
		return nil, errTest
	}
	return v, nil
}

func (l *fakeLockdown) StartPaired() error {
	l.pairCalled = true
	return nil
}

func (l *fakeLockdown) Close() {}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

var errTest = &testErr{"induced failure"}

func TestMetricsAttemptIncrementsByPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Attempts.WithLabelValues("legacy").Inc()
	m.Attempts.WithLabelValues("personalized").Inc()
	m.Attempts.WithLabelValues("personalized").Inc()
	m.Successes.Inc()

	var legacy, personalized dto.Metric
	if err := m.Attempts.WithLabelValues("legacy").Write(&legacy); err != nil {
		t.Fatalf("write legacy metric: %v", err)
	}
	if err := m.Attempts.WithLabelValues("personalized").Write(&personalized); err != nil {
		t.Fatalf("write personalized metric: %v", err)
	}
	if got := legacy.Counter.GetValue(); got != 1 {
		t.Fatalf("legacy attempts = %v, want 1", got)
	}
	if got := personalized.Counter.GetValue(); got != 2 {
		t.Fatalf("personalized attempts = %v, want 2", got)
	}

	var successes dto.Metric
	if err := m.Successes.Write(&successes); err != nil {
		t.Fatalf("write successes metric: %v", err)
	}
	if got := successes.Counter.GetValue(); got != 1 {
		t.Fatalf("successes = %v, want 1", got)
	}
}

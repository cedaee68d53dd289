package main

import (
	"math"
	"testing"
)

func TestParseParamExpr(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.5707", 1.5707, true},
		{"-0.5", -0.5, true},
		{"3.14e-2", 0.0314, true},
		{"pi", math.Pi, true},
		{"pi/2", math.Pi / 2, true},
		{"2pi", 2 * math.Pi, true},
		{"2*pi", 2 * math.Pi, true},
		{"3pi/4", 3 * math.Pi / 4, true},
		{"3*pi/4", 3 * math.Pi / 4, true},
		{"-pi", -math.Pi, true},
		{"-pi/2", -math.Pi / 2, true},
		{"  pi/4  ", math.Pi / 4, true},
		{"PI/2", math.Pi / 2, true},
		{"", 0, false},
		{"banana", 0, false},
		{"pi/0", 0, false},
	}

	for _, tc := range cases {
		got, ok := parseParamExpr(tc.in)
		if ok != tc.ok {
			t.Errorf("parseParamExpr(%q): ok=%v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && math.Abs(got-tc.want) > 1e-10 {
			t.Errorf("parseParamExpr(%q) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func TestFormatParamRoundTrip(t *testing.T) {
	for _, s := range []string{"pi", "pi/2", "pi/4", "3*pi/4", "-pi/2", "2*pi"} {
		val, ok := parseParamExpr(s)
		if !ok {
			t.Fatalf("parseParamExpr(%q) failed", s)
		}
		if got := formatParam(val); got != s {
			t.Errorf("formatParam(parse(%q)) = %q", s, got)
		}
	}
	if got := formatParam(0.123); got != "0.123" {
		t.Errorf("formatParam(0.123) = %q", got)
	}
}

func TestDemoCircuitValid(t *testing.T) {
	c := demoCircuit(math.Pi / 4)
	if err := c.Validate(); err != nil {
		t.Fatalf("demo circuit invalid: %v", err)
	}
	if len(c.Gates) != 7 {
		t.Errorf("demo circuit has %d gates", len(c.Gates))
	}
}

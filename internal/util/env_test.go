package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"off", true, false},
		{"", true, true},
		{"garbage", false, false},
	}
	for _, tt := range tests {
		t.Setenv("YOMAN_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("YOMAN_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("YOMAN_TEST_INT", "42")
	if got := ParseIntEnv("YOMAN_TEST_INT", 7); got != 42 {
		t.Errorf("ParseIntEnv = %d, want 42", got)
	}
	t.Setenv("YOMAN_TEST_INT", "not a number")
	if got := ParseIntEnv("YOMAN_TEST_INT", 7); got != 7 {
		t.Errorf("ParseIntEnv with invalid value = %d, want default 7", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("YOMAN_TEST_DUR", "90s")
	if got := ParseDurationEnv("YOMAN_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("ParseDurationEnv = %v, want 90s", got)
	}
	t.Setenv("YOMAN_TEST_DUR", "")
	if got := ParseDurationEnv("YOMAN_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv with empty value = %v, want 1m", got)
	}
}

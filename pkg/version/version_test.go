package version

import "testing"

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
		full string
	}{
		{"tagged", Info{Tag: "v1.2.0", Commit: "abc1234", Date: "2026-01-01", GoVersion: "go1.25.0"}, "v1.2.0", "v1.2.0 (abc1234) built 2026-01-01 go1.25.0"},
		{"commit only", Info{Commit: "abc1234", GoVersion: "go1.25.0"}, "abc1234", "abc1234 go1.25.0"},
		{"dev", Info{GoVersion: "go1.25.0"}, "dev", "dev go1.25.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.info.Full(); got != tt.full {
				t.Errorf("Full() = %q, want %q", got, tt.full)
			}
		})
	}
}

func TestGetReportsGoVersion(t *testing.T) {
	if Get().GoVersion == "" {
		t.Error("Get().GoVersion is empty")
	}
}

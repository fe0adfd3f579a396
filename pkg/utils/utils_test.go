package utils

import (
	"testing"
)

func TestHashToken(t *testing.T) {
	token := "north-quantum-phoenix"

	hash, err := HashToken(token, 4)
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}

	if !CheckToken(token, hash) {
		t.Error("CheckToken() rejected the original token")
	}
	if CheckToken("other", hash) {
		t.Error("CheckToken() accepted a different token")
	}
	if CheckToken("", hash) {
		t.Error("CheckToken() accepted an empty token")
	}
}

func TestHumanFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1, "1 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1100, "1.07 KB"},
		{1048576, "1 MB"},
		{3 * 1048576 / 2, "1.5 MB"},
		{5 * 1024 * 1024 * 1024, "5120 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := HumanFileSize(tt.bytes); got != tt.want {
				t.Errorf("HumanFileSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestSignalBars(t *testing.T) {
	tests := []struct {
		rssi int
		want string
	}{
		{-30, "▮▮▮▮"},
		{-50, "▮▮▮▯"},
		{-59, "▮▮▮▯"},
		{-60, "▮▮▯▯"},
		{-70, "▮▯▯▯"},
		{-90, "▮▯▯▯"},
		{0, "▮▮▮▮"},
	}

	for _, tt := range tests {
		if got := SignalBars(tt.rssi); got != tt.want {
			t.Errorf("SignalBars(%d) = %q, want %q", tt.rssi, got, tt.want)
		}
	}
}

func TestFormatSyncTime(t *testing.T) {
	if got := FormatSyncTime(0); got != "never" {
		t.Errorf("FormatSyncTime(0) = %q, want never", got)
	}
	if got := FormatSyncTime(1700000000); got == "never" || got == "" {
		t.Errorf("FormatSyncTime() returned %q for a real timestamp", got)
	}
}

func TestBaseFileName(t *testing.T) {
	tests := map[string]string{
		"cat.gif":              "cat.gif",
		"/gif/cat.gif":         "cat.gif",
		`C:\Users\me\cat.gif`:  "cat.gif",
		"../../etc/passwd.gif": "passwd.gif",
		"dir/":                 "",
	}

	for in, want := range tests {
		if got := BaseFileName(in); got != want {
			t.Errorf("BaseFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

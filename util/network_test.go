package util

import (
	"testing"
)

func TestParseBindAddr(t *testing.T) {
	tests := []struct {
		host    string
		port    int
		want    string
		wantErr bool
	}{
		{"", 9000, "0.0.0.0:9000", false},
		{"localhost", 80, "127.0.0.1:80", false},
		{"10.1.2.3", 0, "10.1.2.3:0", false},
		{"::1", 443, "[::1]:443", false},
		{"::ffff:127.0.0.1", 1, "127.0.0.1:1", false},
		{"example.com", 80, "", true},
		{"127.0.0.1", 70000, "", true},
	}

	for _, tt := range tests {
		got, err := ParseBindAddr(tt.host, tt.port)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBindAddr(%q,%d) err=%v wantErr=%v", tt.host, tt.port, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.want {
			t.Errorf("ParseBindAddr(%q,%d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestFormatAddr(t *testing.T) {
	if got := FormatAddr("1.2.3.4", 22); got != "1.2.3.4:22" {
		t.Errorf("got %q, want %q", got, "1.2.3.4:22")
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}

package validate

import (
	"testing"
	"time"
)

// TestParseBindAddress tests bind address parsing and validation
func TestParseBindAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"valid address", "127.0.0.1:7430", false},
		{"wildcard bind", "0.0.0.0:7430", false},
		{"empty address", "", true},
		{"missing port", "127.0.0.1", true},
		{"non-numeric port", "127.0.0.1:abc", true},
		{"port out of range", "127.0.0.1:70000", true},
		{"hostname not allowed", "localhost:7430", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBindAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBindAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.addr {
				t.Errorf("ParseBindAddress(%q).String() = %q", tt.addr, got.String())
			}
		})
	}
}

// TestValidateChainAddress tests EVM address validation
func TestValidateChainAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"valid checksummed", "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", false},
		{"valid lowercase", "0x5fbdb2315678afecb367f032d93f642f64180aa3", false},
		{"empty", "", true},
		{"missing prefix", "d8dA6BF26964aF9D7eEd9e03E53415D37aA96045", true},
		{"too short", "0xd8dA6BF2", true},
		{"not hex", "0xZZdA6BF26964aF9D7eEd9e03E53415D37aA96045", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChainAddress(tt.addr, "test address")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChainAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

// TestValidateRPCURL tests node endpoint validation
func TestValidateRPCURL(t *testing.T) {
	if err := ValidateRPCURL("http://127.0.0.1:8545"); err != nil {
		t.Errorf("ValidateRPCURL() error = %v for valid URL", err)
	}
	if err := ValidateRPCURL("https://mainnet.example.com/rpc"); err != nil {
		t.Errorf("ValidateRPCURL() error = %v for valid URL", err)
	}
	if err := ValidateRPCURL(""); err == nil {
		t.Error("ValidateRPCURL() should reject empty URL")
	}
	if err := ValidateRPCURL("not a url"); err == nil {
		t.Error("ValidateRPCURL() should reject malformed URL")
	}
}

// TestValidatePositiveTimeout tests duration validation
func TestValidatePositiveTimeout(t *testing.T) {
	if err := ValidatePositiveTimeout(1*time.Second, "delay"); err != nil {
		t.Errorf("ValidatePositiveTimeout(1s) error = %v", err)
	}
	if err := ValidatePositiveTimeout(0, "delay"); err == nil {
		t.Error("ValidatePositiveTimeout(0) should fail")
	}
	if err := ValidatePositiveTimeout(-1*time.Second, "delay"); err == nil {
		t.Error("ValidatePositiveTimeout(-1s) should fail")
	}
}

// TestValidatePortRange tests port validation boundaries
func TestValidatePortRange(t *testing.T) {
	for _, port := range []int{1, 7430, 65535} {
		if err := ValidatePortRange(port); err != nil {
			t.Errorf("ValidatePortRange(%d) error = %v, want nil", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536} {
		if err := ValidatePortRange(port); err == nil {
			t.Errorf("ValidatePortRange(%d) error = nil, want error", port)
		}
	}
}

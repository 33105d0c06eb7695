// Package validate provides input validation utilities for the Anchor relay,
// ensuring configuration and request parameters are well-formed before the
// pipeline or the API acts on them.
//
// Implements validation rules for network addresses, chain addresses, and
// pipeline tuning parameters using the go-playground/validator library.
// Centralizing validation keeps error messages consistent across daemon
// startup, CLI flag processing, and API request handling.
//
// VALIDATION COVERAGE:
//   - Network addresses: "host:port" bind addresses for the REST API
//   - Chain addresses: 0x-prefixed EVM addresses (contract, sender)
//   - Pipeline parameters: positive durations, bounded multipliers, ports
package validate

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// Global validator instance using built-in validations
	validate *validator.Validate
)

func init() {
	validate = validator.New()
	// Built-in validators cover everything we need: ip, eth_addr, url,
	// min, max, required. No custom registration.
}

// NetworkAddress represents a validated network address with host and port
// components for API binding. Uses struct tags for automatic validation via
// the go-playground/validator library.
type NetworkAddress struct {
	Host string `validate:"required,ip"`
	Port int    `validate:"required,min=0,max=65535"`
}

// String returns the network address in standard "host:port" format.
func (na NetworkAddress) String() string {
	return fmt.Sprintf("%s:%d", na.Host, na.Port)
}

// ParseBindAddress parses and validates a "host:port" address string for API
// binding. Ensures the address is usable before the daemon attempts to bind,
// so misconfiguration fails at startup with a clear message instead of at
// first request.
func ParseBindAddress(addr string) (*NetworkAddress, error) {
	if addr == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address format '%s': %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port '%s': %w", portStr, err)
	}

	netAddr := &NetworkAddress{
		Host: host,
		Port: port,
	}

	if err := validate.Struct(netAddr); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return netAddr, nil
}

// ValidateField validates individual values against specified validation
// rules using the go-playground/validator library. Supports all built-in
// tags including eth_addr, url, numeric ranges, and required.
//
// Example: ValidateField("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", "required,eth_addr")
func ValidateField(value interface{}, tag string) error {
	return validate.Var(value, tag)
}

// ValidatePortRange validates that a port number is within the valid range
// (1-65535). Rejects port 0 since the API must bind a predictable address.
func ValidatePortRange(port int) error {
	return ValidateField(port, "required,min=1,max=65535")
}

// ValidateRequiredString validates that a string field is not empty.
func ValidateRequiredString(value, fieldName string) error {
	if err := ValidateField(value, "required"); err != nil {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidatePositiveTimeout validates that a duration is positive (> 0).
// Used for retry delays, RPC timeouts, and pacing intervals so a zero or
// negative value cannot collapse the backoff schedule.
func ValidatePositiveTimeout(timeout time.Duration, name string) error {
	if timeout <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// ValidateChainAddress validates a 0x-prefixed EVM address such as the
// registry contract or the relay's sending account.
func ValidateChainAddress(addr, fieldName string) error {
	if err := ValidateField(addr, "required,eth_addr"); err != nil {
		return fmt.Errorf("%s must be a valid 0x-prefixed address: %s", fieldName, addr)
	}
	return nil
}

// ValidateRPCURL validates the chain node endpoint URL.
func ValidateRPCURL(rawURL string) error {
	if err := ValidateField(rawURL, "required,url"); err != nil {
		return fmt.Errorf("rpc url must be a valid URL: %s", rawURL)
	}
	return nil
}

// Package version provides centralized version information for Anchor
// project binaries. This package supports independent versioning for the
// anchord daemon and the anchorctl CLI as separate components, allowing them
// to evolve independently while staying consistent within each binary.
// All versions follow semantic versioning (semver) conventions.

package version

// AnchordVersion holds the current anchord daemon version.
// Format: major.minor.patch[-prerelease][+build]
const AnchordVersion = "0.1.0-dev"

// AnchorctlVersion holds the current anchorctl CLI version.
// This is used by the CLI binary and allows independent evolution of the
// operator tool separate from the relay daemon.
// Format: major.minor.patch[-prerelease][+build]
const AnchorctlVersion = "0.1.0-dev"

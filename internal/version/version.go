// Package version carries the CLI's build identity.
package version

// Stamped at build time via
// -ldflags "-X typelift/internal/version.Number=...".
var (
	// Number is the semantic version of the CLI.
	Number = "0.1.0-dev"

	// Commit is an optional git commit hash.
	Commit = ""

	// Date is an optional build date in ISO-8601.
	Date = ""
)

// Package version carries the SDK release number reported in span
// bookkeeping attributes, API headers, and the CLI.
package version

// Number is the agentrail release.
const Number = "0.2.0"

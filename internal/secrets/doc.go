// Package secrets detects and redacts credentials in repository content
// before it leaves the process for the analysis backend.
//
// Each redaction is replaced by a "[REDACTED:<rule-id>]" placeholder and
// reported as a Finding (rule and line, never the matched value), so the
// analysis can still flag a hard-coded secret without receiving it.
package secrets

// Package discovery runs the external tool that reports which output modules
// a framework configuration declares.
//
// Execution model:
//   - One subprocess per Discover call, started with the configured command
//     and arguments.
//   - The request is written to stdin as a single JSON line, then stdin is
//     closed.
//   - The first stdout line is the response. stderr is captured, capped at
//     64 KiB, and quoted in errors.
//   - The subprocess is bound to the caller's context. On cancellation it
//     receives SIGTERM and, after a grace period, SIGKILL.
//
// Every failure of the tool (spawn error, non-zero exit, unusable output,
// cancellation) is reported as an errdefs.ErrCompilation error.
package discovery

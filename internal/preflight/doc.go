// Package preflight provides readiness checks for the external tools,
// directories, and services that Docket depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to serve while any
//     blocker fails, so the pipeline never claims entries it cannot finish.
//   - The CLI "docket status" command and the API status endpoint use
//     individual check functions (CheckCompletionFromConfig, ProbeSpace)
//     to display service health.
//
// Checks that guard a degradable feature report failures as advisory --
// a missing OCR binary or an unreachable completion API narrows what the
// pipeline produces without making it unsafe to run.
package preflight

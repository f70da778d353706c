// Package preflight provides readiness checks for the paths and services an
// update run depends on.
//
// The checks run in two contexts:
//   - The daemon calls RunAll at startup before accepting update work, so a
//     broken environment is reported before the first session fails in it.
//   - The CLI status command uses individual check functions to display
//     environment health alongside the session state.
package preflight

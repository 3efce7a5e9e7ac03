// Package diag collects located diagnostics for policy documents and rule
// conditions so linting can report every problem in one pass.
package diag

// Package core implements the NPL mini runtime.
//
// This package provides the addressing scheme, the runtime state (a named,
// independently queued message sink with per-path handlers), the runtime
// manager that owns and drives a pool of states, and the channel property
// table consulted by transport collaborators.
package core

// Package flows contains the per-operation orchestration logic of the
// engine, decoupled from the root package through dependency structs. Each
// Run* function is pure wiring: it consults the rate limiter, reads and
// writes the account store through injected functions, and reports either
// a typed result or a failure the root engine maps onto its sentinel
// errors. Flows never see Redis clients, SQL, or JWT internals directly.
package flows

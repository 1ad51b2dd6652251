// Package scoring turns visitor behavior into a lead score and tier.
//
// Everything here is a pure function over its inputs: no I/O, no clocks read
// implicitly, no shared mutable state. Callers pass "now" explicitly so the
// same inputs always produce the same breakdown.
//
// The pieces compose bottom-up:
//   - decay.go: time decay of individual score events (halves every 30 days, zero at 90)
//   - signals.go: negative signals (careers pages, personal or competitor email, inactivity)
//   - patterns.go: sequential journey bonuses
//   - velocity.go: per-session engagement bonuses
//   - leadscore.go: page/behavior weights and the combined breakdown
package scoring

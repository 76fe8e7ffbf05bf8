// Package engine runs the attempt loop that finds, verifies and delivers a
// stream manifest.
//
// A Controller owns one Run. Each attempt navigates (or reloads), tries
// play controls, waits for the candidate store to grow, then verifies the
// best ranked selections one at a time. Attempts back off linearly and the
// whole Run is bounded by a wall-clock budget.
package engine

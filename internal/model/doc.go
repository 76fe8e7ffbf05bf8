// Package model defines the data shared by the discovery engine.
//
// A Run owns an ordered list of Attempts and a snapshot of the Candidates
// observed while it ran. Candidates are derived from Signals, one per unique
// URL. A Manifest exists only once the verifier has confirmed the sentinel,
// and a Selection records which ranking tier produced the URL that verified.
//
// Every enum in this package marshals to a stable lower-kebab string so that
// reports and the history database stay readable.
package model

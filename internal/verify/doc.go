// Package verify confirms that a candidate URL serves a playlist and
// rewrites its relative references to absolute URLs.
package verify

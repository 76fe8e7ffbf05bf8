// Package database keeps the history of runs in SQLite (modernc.org/sqlite,
// no cgo). Each run is stored as a summary row plus its attempts and its
// final candidate snapshot, which lets the history command list runs per
// target and diff the candidate sets of consecutive runs.
package database

// Package candidate holds the candidate store and the ranker.
//
// The Store is an insertion-ordered set of URLs fed concurrently by the
// instrumentation sources. The Ranker is a pure function over a Store
// snapshot driven by a declarative Rule table and a host/path denylist.
package candidate

// Package instrument turns browser activity into candidate Signals.
//
// An Adapter runs several independent sources against one page: a network
// tap over the browser protocol events, and in-page samplers for media
// elements, global bindings, resource timing and the fetch/XHR hooks that
// Prepare installs before any page script runs. Each source is isolated so
// a failure in one never stops the others.
package instrument

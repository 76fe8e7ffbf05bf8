// Package delivery forwards a verified manifest to the sink with bearer
// authentication.
package delivery

// Package main provides the entry point for the streamscout CLI.
//
// streamscout opens a page in a real browser, watches every channel a
// video player can use to reach its HLS playlist, confirms the playlist
// and forwards it to a receiving service.
//
// Usage:
//
//	streamscout run <target-url>
//	streamscout history [target-url]
//
// See --help for all available options.
package main

import "os"

func main() {
	os.Exit(Execute())
}

// Package report renders finished runs.
//
// Three formats are available: SimpleWriter for the terminal, JSONWriter
// for other tools and MarkdownWriter for sharing. Each implements Writer.
// When a run fails, every format includes the candidate dump so the
// operator can see what was observed and why nothing verified.
package report

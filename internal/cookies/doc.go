// Package cookies loads Netscape cookies.txt files used to seed the
// browser session and the retrieval client.
package cookies

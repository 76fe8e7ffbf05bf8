// Package fetch is the HTTP retrieval client used to verify manifests.
// It optionally routes through a SOCKS5 proxy and forwards the browser
// session's cookies to matching hosts only.
package fetch

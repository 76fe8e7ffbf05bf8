// Package proxy validates and health-checks SOCKS5 proxies and can run an
// embedded Tor daemon whose SOCKS5 port routes browser and retrieval traffic.
package proxy

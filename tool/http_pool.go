package tool

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// defaultHTTPClient is shared by every http unit loaded without an explicit
// client so that units on the same host reuse connections. It sets no overall
// timeout; per-unit limits come from timeout_ms.
var defaultHTTPClient = sync.OnceValue(func() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport}
})

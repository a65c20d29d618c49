// Package http provides the HTTP client used to fetch gallery images.
//
// The Client in this package handles:
//   - A fixed desktop browser User-Agent
//   - Host and Cookie headers (the cookie always carries nw=1)
//   - Streaming file downloads with progress tracking
//   - Typed errors for non-2xx responses and local file failures
//
// # Basic Usage
//
//	resolver := http.NewResolver(http.ProxyEnvFromOS(), http.ResolverOptions{})
//	client := http.NewClient(resolver.Client(ctx))
//
//	err := client.DownloadFile(ctx, imageURL, "/path/to/0001.jpg", rawCookie, nil)
//	var statusErr *http.StatusError
//	if errors.As(err, &statusErr) {
//	    fmt.Println(statusErr.Code)
//	}
//
// # Proxies
//
// The Resolver turns HTTP_PROXY, HTTPS_PROXY and ALL_PROXY (either case)
// into a client. Proxies are only used when at least one of them accepts a
// TCP connection; otherwise the client connects directly.
package http

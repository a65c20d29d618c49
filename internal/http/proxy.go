package http

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProbeTimeout bounds the TCP liveness check of a proxy.
const DefaultProbeTimeout = 2 * time.Second

// ProxyEnv holds the proxy settings recognized from the environment.
//
// Each field is the raw value of the corresponding variable, uppercase name
// taking precedence over lowercase. Empty means unset.
type ProxyEnv struct {
	HTTPProxy  string
	HTTPSProxy string
	AllProxy   string
}

// ProxyEnvFromOS reads HTTP_PROXY, HTTPS_PROXY and ALL_PROXY, falling back
// to their lowercase forms.
func ProxyEnvFromOS() ProxyEnv {
	return ProxyEnvFromLookup(os.LookupEnv)
}

// ProxyEnvFromLookup builds a ProxyEnv from an arbitrary variable lookup,
// which keeps tests away from the real process environment.
func ProxyEnvFromLookup(lookup func(string) (string, bool)) ProxyEnv {
	get := func(name string) string {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		if v, ok := lookup(strings.ToLower(name)); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}

	return ProxyEnv{
		HTTPProxy:  get("HTTP_PROXY"),
		HTTPSProxy: get("HTTPS_PROXY"),
		AllProxy:   get("ALL_PROXY"),
	}
}

// IsEmpty reports whether no proxy variable is set.
func (e ProxyEnv) IsEmpty() bool {
	return e.HTTPProxy == "" && e.HTTPSProxy == "" && e.AllProxy == ""
}

// candidates returns the configured values in probing order.
func (e ProxyEnv) candidates() []string {
	var out []string
	for _, v := range []string{e.HTTPSProxy, e.HTTPProxy, e.AllProxy} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ResolverOptions configures a Resolver. Zero values select defaults.
type ResolverOptions struct {
	// ProbeTimeout bounds each proxy TCP probe. Default: DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// RequestTimeout bounds each request made by the built client.
	// Default: DefaultTimeout.
	RequestTimeout time.Duration

	// Dial opens the probe connection. Default: net.Dialer.DialContext.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver builds the HTTP client used for downloads.
//
// The proxy probe runs at most once per Resolver; Client returns the same
// *http.Client to every caller afterwards.
type Resolver struct {
	env  ProxyEnv
	opts ResolverOptions

	once   sync.Once
	client *http.Client
	proxy  atomic.Bool
}

// NewResolver creates a Resolver for the given proxy environment.
func NewResolver(env ProxyEnv, opts ResolverOptions) *Resolver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultTimeout
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	return &Resolver{env: env, opts: opts}
}

// Client returns the memoized client, building it on first use.
func (r *Resolver) Client(ctx context.Context) *http.Client {
	r.once.Do(func() {
		client, proxy := r.build(ctx)
		r.proxy.Store(proxy)
		r.client = client
	})
	return r.client
}

// UsesProxy reports whether the memoized client routes through a proxy.
// It is false until Client has been called.
func (r *Resolver) UsesProxy() bool {
	return r.proxy.Load()
}

// build probes the configured proxies and returns a new client.
//
// With no proxy configured, or none reachable, the client connects directly.
// Otherwise it carries up to three rules: the HTTPS proxy for https://
// targets, the HTTP proxy for http:// targets and the ALL proxy for anything
// else. Unparseable proxy URLs leave their rule empty.
func (r *Resolver) build(ctx context.Context) (*http.Client, bool) {
	if r.env.IsEmpty() || !r.anyReachable(ctx) {
		return newDirectClient(r.opts.RequestTimeout), false
	}

	httpsProxy := parseProxyURL(r.env.HTTPSProxy)
	httpProxy := parseProxyURL(r.env.HTTPProxy)
	allProxy := parseProxyURL(r.env.AllProxy)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		switch {
		case req.URL.Scheme == "https" && httpsProxy != nil:
			return httpsProxy, nil
		case req.URL.Scheme == "http" && httpProxy != nil:
			return httpProxy, nil
		case allProxy != nil:
			return allProxy, nil
		}
		return nil, nil
	}

	return &http.Client{Transport: transport, Timeout: r.opts.RequestTimeout}, true
}

// anyReachable reports whether at least one candidate proxy accepts a TCP
// connection within the probe timeout.
func (r *Resolver) anyReachable(ctx context.Context) bool {
	for _, raw := range r.env.candidates() {
		u := parseProxyURL(raw)
		if u == nil {
			continue
		}
		if r.probe(ctx, proxyAddress(u)) {
			return true
		}
	}
	return false
}

func (r *Resolver) probe(ctx context.Context, address string) bool {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	conn, err := r.opts.Dial(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// parseProxyURL parses a proxy variable value. A value without a scheme is
// taken as an http proxy. It returns nil when the value is unusable.
func parseProxyURL(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return u
}

// proxyAddress returns host:port of a proxy URL, filling in the scheme's
// default port.
func proxyAddress(u *url.URL) string {
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}

	port := "80"
	switch u.Scheme {
	case "https":
		port = "443"
	case "socks5", "socks5h":
		port = "1080"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// newDirectClient returns a client that ignores proxy variables entirely.
func newDirectClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	return &http.Client{Transport: transport, Timeout: timeout}
}

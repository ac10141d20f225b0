package telegram

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// newHTTPClient builds the transport for Bot API calls. proxyURL may be
// empty, an http(s) proxy or a socks5 proxy. Timeouts are set per call.
func newHTTPClient(proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL == "" {
		return &http.Client{Transport: transport}, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("bot_api_proxy: %v", err)}
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, &ConfigError{Msg: fmt.Sprintf("bot_api_proxy: %v", err)}
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return nil, &ConfigError{Msg: fmt.Sprintf("bot_api_proxy: unsupported scheme %q", u.Scheme)}
	}
	return &http.Client{Transport: transport}, nil
}

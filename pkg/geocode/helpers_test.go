package geocode

import (
	"net/http"
	"net/http/httptest"
	"net/url"
)

// rewriteTransport redirects every request to the test server regardless of
// the adapter's hardcoded host.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newRewriteClient(server *httptest.Server) *http.Client {
	target, _ := url.Parse(server.URL)
	return &http.Client{Transport: rewriteTransport{target: target}}
}

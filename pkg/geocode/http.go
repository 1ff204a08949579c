package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

// getJSON performs a GET with query parameters and decodes the JSON body into
// out. The HTTP status is returned alongside so callers can map provider
// status codes onto the error taxonomy before inspecting the payload.
func getJSON(ctx context.Context, client *http.Client, base string, params url.Values, out any) (int, error) {
	reqURL := base
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "geocode: build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, eris.Wrap(err, "geocode: read body")
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, eris.Wrap(err, "geocode: parse response")
		}
	}
	return resp.StatusCode, nil
}

// compose joins the present address fields in the given order, separated by
// commas, the free-text query form several services expect.
func compose(fields map[string]string, order ...string) string {
	var out string
	for _, f := range order {
		v, ok := fields[f]
		if !ok {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += v
	}
	return out
}

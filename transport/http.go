package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/samsarahq/go/oops"
)

// httpPostBody is the wire shape POSTed to each upstream, grounded on
// graphql/http.go's httpPostBody.
type httpPostBody struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type httpResponseBody struct {
	Data       json.RawMessage        `json:"data"`
	Errors     json.RawMessage        `json:"errors"`
	Extensions map[string]interface{} `json:"extensions"`
}

// HTTPFetcher POSTs JSON to one URL per configured service. It is not
// subscription-capable.
type HTTPFetcher struct {
	Client *http.Client
	URLs   map[string]string // service name -> endpoint URL
}

// NewHTTPFetcher returns an HTTPFetcher using client (or http.DefaultClient
// if nil) against the given per-service URLs.
func NewHTTPFetcher(client *http.Client, urls map[string]string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client, URLs: urls}
}

func (f *HTTPFetcher) Query(ctx context.Context, service string, req *Request) (*Response, error) {
	url, ok := f.URLs[service]
	if !ok {
		return nil, oops.Errorf("no URL configured for service %q", service)
	}

	body, err := json.Marshal(httpPostBody{Query: req.Query, Variables: req.Variables})
	if err != nil {
		return nil, oops.Wrapf(err, "marshaling request to %s", service)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, oops.Wrapf(err, "building request to %s", service)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, oops.Wrapf(err, "posting to %s", service)
	}
	defer resp.Body.Close()

	var parsed httpResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, oops.Wrapf(err, "decoding response from %s", service)
	}

	out := &Response{Data: parsed.Data, Extensions: parsed.Extensions}
	if len(parsed.Errors) > 0 {
		if err := json.Unmarshal(parsed.Errors, &out.Errors); err != nil {
			return nil, oops.Wrapf(err, "decoding errors from %s", service)
		}
	}
	return out, nil
}

func (f *HTTPFetcher) Subscribe(ctx context.Context, service string, req *Request) (<-chan *Event, error) {
	return nil, &ErrNotSubscribable{Service: service}
}

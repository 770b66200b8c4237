// Package rest implements a simple REST wrapper
//
// Unlike a generic HTTP helper it never passes query parameters
// through url.Values: the ECloud verifier recomputes request
// signatures from the raw query bytes, so the query string is built by
// the configured encoder and used verbatim.
//
// All methods are safe for concurrent calling.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

// Client contains the info to sustain the API
type Client struct {
	mu           sync.RWMutex
	c            *http.Client
	rootURL      string
	errorHandler func(resp *http.Response) error
	headers      map[string]string
	signer       SignerFn
	encodeQuery  QueryEncoderFn
}

// NewClient takes an http.Client and makes a new api instance
func NewClient(c *http.Client) *Client {
	api := &Client{
		c:            c,
		errorHandler: defaultErrorHandler,
		headers:      make(map[string]string),
	}
	return api
}

// ReadBody reads resp.Body into result, closing the body
func ReadBody(resp *http.Response) (result []byte, err error) {
	defer checkClose(resp.Body, &err)
	return ioutil.ReadAll(resp.Body)
}

// checkClose closes c, recording the first error in *err
func checkClose(c io.Closer, err *error) {
	cerr := c.Close()
	if *err == nil {
		*err = cerr
	}
}

// defaultErrorHandler doesn't attempt to parse the http body, just
// returns it in the error message closing resp.Body
func defaultErrorHandler(resp *http.Response) (err error) {
	body, err := ReadBody(resp)
	if err != nil {
		return errors.Wrap(err, "error reading error out of body")
	}
	return errors.Errorf("HTTP error %v (%v) returned body: %q", resp.StatusCode, resp.Status, body)
}

// SetErrorHandler sets the handler to decode an error response when
// the HTTP status code is not 2xx.  The handler should close resp.Body.
func (api *Client) SetErrorHandler(fn func(resp *http.Response) error) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.errorHandler = fn
	return api
}

// SetRoot sets the default RootURL.  You can override this on a per
// call basis using the RootURL field in Opts.
func (api *Client) SetRoot(RootURL string) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.rootURL = RootURL
	return api
}

// SetHeader sets a header for all requests
func (api *Client) SetHeader(key, value string) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.headers[key] = value
	return api
}

// RemoveHeader unsets a header for all requests
func (api *Client) RemoveHeader(key string) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	delete(api.headers, key)
	return api
}

// SignerFn is used to sign the query parameters of an outgoing
// request.  It is called with the method, the path and the caller's
// parameters and returns the full signed parameter set.
//
// Signing runs inside Call, so a retry performed above the client
// re-signs with a fresh timestamp and nonce rather than reusing an
// earlier signature.
type SignerFn func(method, path string, params map[string]string) (map[string]string, error)

// QueryEncoderFn turns a parameter map into the literal query string
// placed on the wire.
type QueryEncoderFn func(params map[string]string) string

// SetSigner sets a signer for all requests
func (api *Client) SetSigner(signer SignerFn) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.signer = signer
	return api
}

// SetQueryEncoder sets the encoder used to serialise query parameters
func (api *Client) SetQueryEncoder(fn QueryEncoderFn) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.encodeQuery = fn
	return api
}

// Opts contains parameters for Call, CallJSON, etc.
type Opts struct {
	Method       string // GET, POST, etc.
	Path         string // relative to RootURL
	RootURL      string // override RootURL passed into SetRoot()
	Body         io.Reader
	NoResponse   bool // set to close Body
	ContentType  string
	ExtraHeaders map[string]string
	Parameters   map[string]string // any parameters for the final URL
	NoSign       bool              // set to skip signing even if a signer is configured
	IgnoreStatus bool              // if set then we don't check error status or parse error body
}

// Copy creates a copy of the options
func (o *Opts) Copy() *Opts {
	newOpts := *o
	return &newOpts
}

// DecodeJSON decodes resp.Body into result
func DecodeJSON(resp *http.Response, result interface{}) (err error) {
	defer checkClose(resp.Body, &err)
	decoder := json.NewDecoder(resp.Body)
	return decoder.Decode(result)
}

// defaultQueryEncoder emits keys and values as given, in map order.
// Clients which need deterministic or encoded output must set their
// own encoder.
func defaultQueryEncoder(params map[string]string) string {
	var b bytes.Buffer
	for k, v := range params {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

// Call makes the call and returns the http.Response
//
// if err == nil then resp.Body will need to be closed unless
// opt.NoResponse is set
//
// if err != nil then resp.Body will have been closed
//
// it will return resp if at all possible, even if err is set
func (api *Client) Call(ctx context.Context, opts *Opts) (resp *http.Response, err error) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	if opts == nil {
		return nil, errors.New("call() called with nil opts")
	}
	url := api.rootURL
	if opts.RootURL != "" {
		url = opts.RootURL
	}
	if url == "" {
		return nil, errors.New("RootURL not set")
	}
	url += opts.Path
	params := opts.Parameters
	if api.signer != nil && !opts.NoSign {
		params, err = api.signer(opts.Method, opts.Path, params)
		if err != nil {
			return nil, errors.Wrap(err, "signer failed")
		}
	}
	if len(params) > 0 {
		encode := api.encodeQuery
		if encode == nil {
			encode = defaultQueryEncoder
		}
		// The encoded query is used verbatim - passing it through
		// another encoder would diverge from the signed bytes
		url += "?" + encode(params)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, url, opts.Body)
	if err != nil {
		return
	}
	headers := make(map[string]string)
	// Set default headers
	for k, v := range api.headers {
		headers[k] = v
	}
	if opts.ContentType != "" {
		headers["Content-Type"] = opts.ContentType
	}
	// Set any extra headers
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	// Now set the headers
	for k, v := range headers {
		if k != "" && v != "" {
			req.Header.Add(k, v)
		}
	}
	resp, err = api.c.Do(req)
	if err != nil {
		return nil, err
	}
	if !opts.IgnoreStatus {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err = api.errorHandler(resp)
			if err.Error() == "" {
				// replace empty errors with something
				err = errors.Errorf("http error %d: %v", resp.StatusCode, resp.Status)
			}
			return resp, err
		}
	}
	if opts.NoResponse {
		return resp, resp.Body.Close()
	}
	return resp, nil
}

// CallJSON runs Call and decodes the body as a JSON object into
// response (if not nil)
//
// If request is not nil then it will be JSON encoded as the body of
// the request.
//
// If response is not nil then the response will be JSON decoded into
// it and resp.Body will be closed.
//
// If response is nil then the resp.Body will be closed only if
// opts.NoResponse is set.
//
// It will return resp if at all possible, even if err is set
func (api *Client) CallJSON(ctx context.Context, opts *Opts, request interface{}, response interface{}) (resp *http.Response, err error) {
	if request != nil {
		body, err := json.Marshal(request)
		if err != nil {
			return nil, err
		}
		opts = opts.Copy()
		opts.ContentType = "application/json"
		opts.Body = bytes.NewBuffer(body)
	}
	resp, err = api.Call(ctx, opts)
	if err != nil {
		return resp, err
	}
	// if opts.NoResponse is set, resp.Body will have been closed by Call()
	if response == nil || opts.NoResponse {
		return resp, nil
	}
	err = DecodeJSON(resp, response)
	return resp, err
}

package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sortedEncoder is a deterministic QueryEncoderFn for tests
func sortedEncoder(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

func TestCallUsesEncodedQueryVerbatim(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, "{}")
	}))
	defer ts.Close()

	api := NewClient(ts.Client()).SetRoot(ts.URL).SetQueryEncoder(sortedEncoder)
	resp, err := api.Call(context.Background(), &Opts{
		Method: "GET",
		Path:   "/x",
		Parameters: map[string]string{
			"Timestamp": "2024-01-01T00%3A00%3A00Z",
			"a":         "1",
		},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	// Already encoded values must pass through untouched
	assert.Equal(t, "Timestamp=2024-01-01T00%3A00%3A00Z&a=1", gotQuery)
}

func TestCallSignsParameters(t *testing.T) {
	signCalls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "Signature=")
		fmt.Fprint(w, "{}")
	}))
	defer ts.Close()

	api := NewClient(ts.Client()).SetRoot(ts.URL).SetQueryEncoder(sortedEncoder)
	api.SetSigner(func(method, path string, params map[string]string) (map[string]string, error) {
		signCalls++
		assert.Equal(t, "GET", method)
		assert.Equal(t, "/x", path)
		signed := map[string]string{"Signature": fmt.Sprintf("sig%d", signCalls)}
		for k, v := range params {
			signed[k] = v
		}
		return signed, nil
	})

	for i := 0; i < 2; i++ {
		resp, err := api.Call(context.Background(), &Opts{
			Method:     "GET",
			Path:       "/x",
			Parameters: map[string]string{"a": "1"},
		})
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	// Each call signs afresh - signatures are never reused
	assert.Equal(t, 2, signCalls)
}

func TestCallNoSign(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.URL.RawQuery, "Signature=")
		fmt.Fprint(w, "{}")
	}))
	defer ts.Close()

	api := NewClient(ts.Client()).SetRoot(ts.URL).SetQueryEncoder(sortedEncoder)
	api.SetSigner(func(method, path string, params map[string]string) (map[string]string, error) {
		t.Error("signer called with NoSign set")
		return params, nil
	})
	resp, err := api.Call(context.Background(), &Opts{
		Method:     "GET",
		Path:       "/x",
		Parameters: map[string]string{"a": "1"},
		NoSign:     true,
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestCallJSON(t *testing.T) {
	type in struct {
		Question string `json:"question"`
	}
	type out struct {
		Answer int `json:"answer"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		fmt.Fprint(w, `{"answer":42}`)
	}))
	defer ts.Close()

	api := NewClient(ts.Client()).SetRoot(ts.URL)
	var result out
	_, err := api.CallJSON(context.Background(), &Opts{
		Method: "POST",
		Path:   "/x",
	}, &in{Question: "life"}, &result)
	require.NoError(t, err)
	assert.Equal(t, 42, result.Answer)
}

func TestErrorHandler(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone wrong", http.StatusInternalServerError)
	}))
	defer ts.Close()

	api := NewClient(ts.Client()).SetRoot(ts.URL)
	resp, err := api.Call(context.Background(), &Opts{Method: "GET", Path: "/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "gone wrong")
	require.NotNil(t, resp)
}

func TestHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ecollect/test", r.Header.Get("User-Agent"))
		assert.Equal(t, "b", r.Header.Get("X-A"))
		fmt.Fprint(w, "{}")
	}))
	defer ts.Close()

	api := NewClient(ts.Client()).SetRoot(ts.URL).SetHeader("User-Agent", "ecollect/test")
	resp, err := api.Call(context.Background(), &Opts{
		Method:       "GET",
		Path:         "/x",
		ExtraHeaders: map[string]string{"X-A": "b"},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestRootURLNotSet(t *testing.T) {
	api := NewClient(http.DefaultClient)
	_, err := api.Call(context.Background(), &Opts{Method: "GET", Path: "/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RootURL not set")
}

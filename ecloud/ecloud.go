// Package ecloud implements a client for the China Mobile ECloud
// help-center portal and monitor OpenAPI.
//
// Monitor calls carry signed query parameters (see the auth package);
// portal calls are unsigned.  All calls are paced and retried on
// transient HTTP failures.
package ecloud

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ecloudtools/ecollect/ecloud/api"
	"github.com/ecloudtools/ecollect/ecloud/auth"
	"github.com/ecloudtools/ecollect/lib/log"
	"github.com/ecloudtools/ecollect/lib/pacer"
	"github.com/ecloudtools/ecollect/lib/rest"
)

const (
	// DefaultAPIURL is the monitor OpenAPI endpoint
	DefaultAPIURL = "https://api-wuxi-1.cmecloud.cn:8443"
	// DefaultPortalURL is the help-center portal endpoint
	DefaultPortalURL = "https://ecloud.10086.cn/op-help-center/request-api/service-api"

	monitorPath = "/api/edw/openapi/version2/v1/dawn/monitor"

	minSleep      = 100 * time.Millisecond
	maxSleep      = 2 * time.Second
	decayConstant = 2 // bigger for slower decay, exponential

	defaultPageSize = 100
)

// ErrNoCredential is returned by monitor calls when the client was
// built without a credential.
var ErrNoCredential = errors.New("ecloud: no credential configured")

// retryErrorCodes is a slice of error codes that we will retry
var retryErrorCodes = []int{
	429, // Too Many Requests.
	500, // Internal Server Error
	502, // Bad Gateway
	503, // Service Unavailable
	504, // Gateway Timeout
	509, // Bandwidth Limit Exceeded
}

// shouldRetry returns a boolean as to whether this resp and err
// deserve to be retried.  It returns the err as a convenience
func shouldRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		for _, code := range retryErrorCodes {
			if resp.StatusCode == code {
				return true, err
			}
		}
	}
	return false, err
}

// Options defines the configuration for the client
type Options struct {
	Credential *auth.Credential // may be nil for portal-only use
	APIURL     string           // monitor endpoint, DefaultAPIURL if empty
	PortalURL  string           // portal endpoint, DefaultPortalURL if empty
}

// Client talks to the ECloud APIs
type Client struct {
	opt    Options
	signer *auth.Signer // nil when no credential was given
	srv    *rest.Client // monitor API, signed
	portal *rest.Client // help-center portal, unsigned
	pacer  *pacer.Pacer
}

// String converts the client into a string for logging
func (c *Client) String() string {
	return "ecloud"
}

// New creates a new Client from the Options given.
//
// hc is the http.Client to make the calls with - pass http.DefaultClient
// if in doubt.
func New(hc *http.Client, opt Options) *Client {
	if opt.APIURL == "" {
		opt.APIURL = DefaultAPIURL
	}
	if opt.PortalURL == "" {
		opt.PortalURL = DefaultPortalURL
	}
	c := &Client{
		opt:    opt,
		srv:    rest.NewClient(hc).SetRoot(opt.APIURL),
		portal: rest.NewClient(hc).SetRoot(opt.PortalURL),
		pacer:  pacer.New().SetMinSleep(minSleep).SetMaxSleep(maxSleep).SetDecayConstant(decayConstant),
	}
	c.srv.SetQueryEncoder(auth.CanonicalQueryString)
	c.srv.SetHeader("Content-Type", "application/json")
	c.srv.SetHeader("Accept", "application/json")
	c.srv.SetHeader("Accept-Charset", "utf-8")
	c.srv.SetHeader("User-Agent", "ecollect/"+Version)
	c.portal.SetQueryEncoder(auth.CanonicalQueryString)
	c.portal.SetHeader("Accept", "application/json, text/plain, */*")
	c.portal.SetHeader("User-Agent", "ecollect/"+Version)
	if opt.Credential != nil {
		c.signer = auth.NewSigner(opt.Credential)
		c.srv.SetSigner(func(method, path string, params map[string]string) (map[string]string, error) {
			return c.signer.SignRequest(method, path, params), nil
		})
	}
	return c
}

// callPortal calls the portal, checks the envelope and decodes its
// data field into result (if not nil)
func (c *Client) callPortal(ctx context.Context, opts *rest.Opts, result interface{}) error {
	var envelope api.PortalResponse
	err := c.pacer.Call(func() (bool, error) {
		resp, err := c.portal.CallJSON(ctx, opts, nil, &envelope)
		return shouldRetry(ctx, resp, err)
	})
	if err != nil {
		return errors.Wrapf(err, "portal %s failed", opts.Path)
	}
	if err := envelope.AsErr(); err != nil {
		return err
	}
	if result != nil {
		if len(envelope.Data) == 0 {
			return errors.Errorf("portal %s returned no data", opts.Path)
		}
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return errors.Wrapf(err, "portal %s decode failed", opts.Path)
		}
	}
	return nil
}

// callMonitor signs and calls the monitor API, checks the envelope and
// decodes its entity field into result (if not nil)
func (c *Client) callMonitor(ctx context.Context, opts *rest.Opts, request, result interface{}) error {
	if c.signer == nil {
		return ErrNoCredential
	}
	var envelope api.MonitorResponse
	err := c.pacer.Call(func() (bool, error) {
		resp, err := c.srv.CallJSON(ctx, opts, request, &envelope)
		return shouldRetry(ctx, resp, err)
	})
	if err != nil {
		return errors.Wrapf(err, "monitor %s failed", opts.Path)
	}
	if err := envelope.AsErr(); err != nil {
		return err
	}
	// A missing entity is tolerated - result keeps its zero value
	if result != nil && len(envelope.Entity) > 0 {
		if err := json.Unmarshal(envelope.Entity, result); err != nil {
			return errors.Wrapf(err, "monitor %s decode failed", opts.Path)
		}
	}
	return nil
}

// decodeNodes decodes raw as either a single node or a list of nodes
func decodeNodes(raw json.RawMessage) ([]api.OutlineNode, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var nodes []api.OutlineNode
		err := json.Unmarshal(trimmed, &nodes)
		return nodes, err
	}
	var node api.OutlineNode
	if err := json.Unmarshal(trimmed, &node); err != nil {
		return nil, err
	}
	return []api.OutlineNode{node}, nil
}

// CategoryInfo fetches the category info, which carries the outline id
// for the category's documentation tree.
func (c *Client) CategoryInfo(ctx context.Context, category string) (*api.CategoryInfo, error) {
	var info api.CategoryInfo
	err := c.callPortal(ctx, &rest.Opts{
		Method: "GET",
		Path:   "/category/info/" + url.PathEscape(category),
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// OutlineTree fetches the documentation tree for an outline id.
//
// If the direct endpoint fails it falls back to fetching the full tree
// and searching it for the outline id.
func (c *Client) OutlineTree(ctx context.Context, outlineID string) ([]api.OutlineNode, error) {
	var raw json.RawMessage
	err := c.callPortal(ctx, &rest.Opts{
		Method:     "GET",
		Path:       "/outline/tree",
		Parameters: map[string]string{"outlineId": outlineID},
	}, &raw)
	if err == nil {
		return decodeNodes(raw)
	}
	log.Debugf(c, "outline tree for %q failed (%v), searching full tree", outlineID, err)
	full, err := c.FullOutlineTree(ctx)
	if err != nil {
		return nil, err
	}
	node := findNodeByID(full, outlineID)
	if node == nil {
		return nil, errors.Errorf("outline %q not found in full tree", outlineID)
	}
	return []api.OutlineNode{*node}, nil
}

// FullOutlineTree fetches the full documentation tree.
func (c *Client) FullOutlineTree(ctx context.Context) ([]api.OutlineNode, error) {
	var raw json.RawMessage
	err := c.callPortal(ctx, &rest.Opts{
		Method: "GET",
		Path:   "/outline/api/tree",
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeNodes(raw)
}

// findNodeByID searches nodes depth first for the node with the given
// id, using an explicit stack to bound the depth on hostile trees.
func findNodeByID(nodes []api.OutlineNode, id string) *api.OutlineNode {
	stack := make([]*api.OutlineNode, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, &nodes[i])
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if string(node.ID) == id {
			return node
		}
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, &node.Children[i])
		}
	}
	return nil
}

// ArticleInfo fetches the metadata for an article.
func (c *Client) ArticleInfo(ctx context.Context, articleID string) (*api.ArticleInfo, error) {
	var info api.ArticleInfo
	err := c.callPortal(ctx, &rest.Opts{
		Method: "GET",
		Path:   "/article/info/" + url.PathEscape(articleID),
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ArticleContent fetches the raw HTML content for a content uid.
func (c *Client) ArticleContent(ctx context.Context, contentUID string) (string, error) {
	var body []byte
	err := c.pacer.Call(func() (bool, error) {
		resp, err := c.portal.Call(ctx, &rest.Opts{
			Method: "GET",
			Path:   "/article/content/" + url.PathEscape(contentUID),
		})
		if err != nil {
			return shouldRetry(ctx, resp, err)
		}
		body, err = rest.ReadBody(resp)
		return shouldRetry(ctx, resp, err)
	})
	if err != nil {
		return "", errors.Wrapf(err, "fetch content %q failed", contentUID)
	}
	return string(body), nil
}

// ResourceFile downloads an attachment (normally a PDF) by uid.
//
// It returns an error if the response does not look like a PDF.
func (c *Client) ResourceFile(ctx context.Context, uid, filename string) ([]byte, error) {
	var body []byte
	var contentType string
	err := c.pacer.Call(func() (bool, error) {
		resp, err := c.portal.Call(ctx, &rest.Opts{
			Method: "GET",
			Path:   "/resource/file/" + url.PathEscape(uid) + "/filename/" + url.PathEscape(filename),
		})
		if err != nil {
			return shouldRetry(ctx, resp, err)
		}
		contentType = resp.Header.Get("Content-Type")
		body, err = rest.ReadBody(resp)
		return shouldRetry(ctx, resp, err)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "download %q failed", filename)
	}
	if !strings.Contains(strings.ToLower(contentType), "pdf") && !bytes.HasPrefix(body, []byte("%PDF")) {
		return nil, errors.Errorf("response for %q is not a PDF (content type %q)", filename, contentType)
	}
	return body, nil
}

// Resources fetches one page of monitored resources for a pool.
func (c *Client) Resources(ctx context.Context, poolID, productType string, pageNum, pageSize int) (*api.ResourcePage, error) {
	var page api.ResourcePage
	err := c.callMonitor(ctx, &rest.Opts{
		Method: "GET",
		Path:   monitorPath + "/resources",
		Parameters: map[string]string{
			"poolId":      poolID,
			"productType": productType,
			"pageNum":     strconv.Itoa(pageNum),
			"pageSize":    strconv.Itoa(pageSize),
		},
	}, nil, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// ListResources fetches all monitored resources for a pool, walking
// the pagination.
func (c *Client) ListResources(ctx context.Context, poolID, productType string) ([]api.Resource, error) {
	var all []api.Resource
	for pageNum := 1; ; pageNum++ {
		page, err := c.Resources(ctx, poolID, productType, pageNum, defaultPageSize)
		if err != nil {
			return nil, err
		}
		if len(page.Content) == 0 {
			break
		}
		all = append(all, page.Content...)
		if pageNum >= page.PageCount {
			break
		}
	}
	log.Debugf(c, "listed %d resources in pool %q", len(all), poolID)
	return all, nil
}

// MetricIndicators fetches the performance metrics available for a
// product type.
func (c *Client) MetricIndicators(ctx context.Context, poolID, productType string) ([]api.MetricIndicator, error) {
	var indicators []api.MetricIndicator
	err := c.callMonitor(ctx, &rest.Opts{
		Method: "GET",
		Path:   monitorPath + "/distribute/metricindicators",
		Parameters: map[string]string{
			"poolId":      poolID,
			"productType": productType,
		},
	}, nil, &indicators)
	if err != nil {
		return nil, err
	}
	return indicators, nil
}

// MetricNodes fetches the sub node names of a metric for a resource,
// eg the disk partitions.
func (c *Client) MetricNodes(ctx context.Context, poolID, metricName, resourceID string) ([]string, error) {
	var nodes []string
	err := c.callMonitor(ctx, &rest.Opts{
		Method: "GET",
		Path:   monitorPath + "/distribute/metricnode",
		Parameters: map[string]string{
			"poolId":     poolID,
			"metricName": metricName,
			"resourceId": resourceID,
		},
	}, nil, &nodes)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// FetchPerformance fetches aggregated performance data for a resource.
func (c *Client) FetchPerformance(ctx context.Context, poolID string, req *api.PerformanceRequest) ([]api.PerformanceItem, error) {
	var items []api.PerformanceItem
	err := c.callMonitor(ctx, &rest.Opts{
		Method:     "POST",
		Path:       monitorPath + "/distribute/fetch",
		Parameters: map[string]string{"poolId": poolID},
	}, req, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

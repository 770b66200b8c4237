// Package api contains definitions for using the ECloud APIs
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PortalResponse is the envelope returned by the help-center portal
type PortalResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// AsErr checks the code and returns an err if bad or nil if good
func (r *PortalResponse) AsErr() error {
	if r.Code != 200 {
		return fmt.Errorf("portal error %d: %s", r.Code, r.Msg)
	}
	return nil
}

// MonitorResponse is the envelope returned by the monitor OpenAPI
type MonitorResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Entity  json.RawMessage `json:"entity"`
}

// AsErr checks the code and returns an err if bad or nil if good
func (r *MonitorResponse) AsErr() error {
	if r.Code != "000000" {
		return fmt.Errorf("monitor error %s: %s", r.Code, r.Message)
	}
	return nil
}

// ID is an outline node id.  The portal returns these either as JSON
// numbers or as strings, so both decode to the string form.
type ID string

// UnmarshalJSON decodes a number or a string
func (i *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*i = ""
		return nil
	}
	if len(data) >= 2 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*i = ID(n.String())
	return nil
}

// CategoryInfo is returned by /category/info/{category}
type CategoryInfo struct {
	OutlineID ID     `json:"outlineId"`
	Name      string `json:"name"`
}

// OutlineNode is a node of the documentation tree returned by
// /outline/tree and /outline/api/tree
type OutlineNode struct {
	ID        ID            `json:"id"`
	Name      string        `json:"name"`
	ArticleID string        `json:"articleId"`
	Children  []OutlineNode `json:"children"`
}

// ArticleInfo is returned by /article/info/{articleId}
//
// PdfPublished is a JSON document encoded as a string; ContentPublished
// and Content are content UIDs for /article/content/{uid}.
type ArticleInfo struct {
	Title            string `json:"title"`
	PdfPublished     string `json:"pdfPublished"`
	ContentPublished string `json:"contentPublished"`
	Content          string `json:"content"`
}

// PdfRef is the document encoded in ArticleInfo.PdfPublished
type PdfRef struct {
	UID      string `json:"uid"`
	Filename string `json:"filename"`
}

// Resource is one monitored resource from /monitor/resources
type Resource struct {
	ResourceID   string `json:"resourceId"`
	ResourceName string `json:"resourceName"`
}

// ResourcePage is the entity of /monitor/resources
type ResourcePage struct {
	Content   []Resource `json:"content"`
	PageCount int        `json:"pageCount"`
	Total     int        `json:"total"`
}

// MetricIndicator describes one performance metric from
// /monitor/distribute/metricindicators
type MetricIndicator struct {
	MetricName string `json:"metricName"`
	Unit       string `json:"unit,omitempty"`
}

// MetricQuery selects a metric and node for a performance fetch
type MetricQuery struct {
	MetricName     string `json:"metricName"`
	MetricNodeName string `json:"metricNodeName"`
}

// PerformanceRequest is the body of /monitor/distribute/fetch
type PerformanceRequest struct {
	StartTime              string        `json:"startTime"`
	EndTime                string        `json:"endTime"`
	ResourceID             string        `json:"resourceId"`
	ProductType            string        `json:"productType"`
	PerformanceDataAggType string        `json:"performanceDataAggType"`
	Metrics                []MetricQuery `json:"metrics"`
}

// PerformanceItem is one metric result from /monitor/distribute/fetch
type PerformanceItem struct {
	MetricName string   `json:"metricName"`
	AvgValue   *float64 `json:"avgValue"`
}

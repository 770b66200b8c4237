// Package diskusage collects the disk usage of every monitored server
// in a resource pool and renders the result as an Excel report.
//
// For each resource the collector reads the partition list, fetches
// the MAX-aggregated disk metrics over the query window and produces
// one row per partition.  Resources without partition data still get a
// placeholder row so the report accounts for every server.
package diskusage

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ecloudtools/ecollect/ecloud/api"
	"github.com/ecloudtools/ecollect/lib/log"
)

// API is the part of the ecloud client the collector uses
type API interface {
	ListResources(ctx context.Context, poolID, productType string) ([]api.Resource, error)
	MetricIndicators(ctx context.Context, poolID, productType string) ([]api.MetricIndicator, error)
	MetricNodes(ctx context.Context, poolID, metricName, resourceID string) ([]string, error)
	FetchPerformance(ctx context.Context, poolID string, req *api.PerformanceRequest) ([]api.PerformanceItem, error)
}

// Disk metrics reported per partition
const (
	metricDiskTotal   = "vm_realtime_disk_total"
	metricDiskUsed    = "vm_realtime_disk_used"
	metricDiskPercent = "vm_realtime_disk_percent"
)

var diskMetrics = []string{metricDiskTotal, metricDiskUsed, metricDiskPercent}

// timeFormat is the time window format the monitor API expects
const timeFormat = "2006-01-02 15:04:05"

// noPartition marks rows for resources with no partition data
const noPartition = "N/A"

// Options configures the collection
type Options struct {
	PoolID      string    // resource pool to report on
	ProductType string    // defaults to "vm"
	StartTime   time.Time // start of the query window, defaults to EndTime-24h
	EndTime     time.Time // end of the query window, defaults to now
	Concurrency int       // resources fetched in parallel, defaults to 4
}

// Row is one partition of one resource in the report
type Row struct {
	ResourceName string
	ResourceID   string
	Partition    string
	TotalGB      float64
	UsedGB       float64
	UsedPercent  float64
}

// Collector gathers disk usage rows for a pool
type Collector struct {
	api API
	opt Options
}

// New creates a Collector
func New(a API, opt Options) *Collector {
	if opt.ProductType == "" {
		opt.ProductType = "vm"
	}
	if opt.EndTime.IsZero() {
		opt.EndTime = time.Now()
	}
	if opt.StartTime.IsZero() {
		opt.StartTime = opt.EndTime.Add(-24 * time.Hour)
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = 4
	}
	return &Collector{api: a, opt: opt}
}

// String converts the collector into a string for logging
func (c *Collector) String() string {
	return "diskusage"
}

// round2 rounds to 2 decimal places for the report
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Collect gathers one row per resource partition in the pool.
//
// Per-resource failures degrade to placeholder or zero-valued rows so
// one misbehaving server can't sink the whole report.
func (c *Collector) Collect(ctx context.Context) ([]Row, error) {
	if c.opt.PoolID == "" {
		return nil, errors.New("pool id is required")
	}
	resources, err := c.api.ListResources(ctx, c.opt.PoolID, c.opt.ProductType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list resources")
	}
	if len(resources) == 0 {
		return nil, errors.Errorf("no %q resources in pool %q", c.opt.ProductType, c.opt.PoolID)
	}

	indicators, err := c.api.MetricIndicators(ctx, c.opt.PoolID, c.opt.ProductType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metric indicators")
	}
	if !hasDiskMetrics(indicators) {
		return nil, errors.Errorf("pool %q exposes no disk metrics for %q", c.opt.PoolID, c.opt.ProductType)
	}

	startTime := c.opt.StartTime.Format(timeFormat)
	endTime := c.opt.EndTime.Format(timeFormat)
	log.Infof(c, "collecting disk usage for %d resources between %s and %s", len(resources), startTime, endTime)

	// One slot per resource keeps the output in listing order whatever
	// the goroutines finish in
	perResource := make([][]Row, len(resources))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.opt.Concurrency)
	for i, resource := range resources {
		i, resource := i, resource
		g.Go(func() error {
			rows, err := c.collectResource(gCtx, resource, startTime, endTime)
			if err != nil {
				return err
			}
			perResource[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []Row
	for _, resourceRows := range perResource {
		rows = append(rows, resourceRows...)
	}
	log.Infof(c, "collected %d disk usage rows", len(rows))
	return rows, nil
}

// hasDiskMetrics reports whether any of the disk metrics is available
func hasDiskMetrics(indicators []api.MetricIndicator) bool {
	for _, indicator := range indicators {
		for _, name := range diskMetrics {
			if indicator.MetricName == name {
				return true
			}
		}
	}
	return false
}

// collectResource produces the rows for one resource, one per
// partition.  Only context cancellation is returned as an error.
func (c *Collector) collectResource(ctx context.Context, resource api.Resource, startTime, endTime string) ([]Row, error) {
	partitions, err := c.api.MetricNodes(ctx, c.opt.PoolID, metricDiskTotal, resource.ResourceID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Logf(c, "partition list for %q failed: %v", resource.ResourceName, err)
	}
	if len(partitions) == 0 {
		log.Logf(c, "no partitions for %q, writing placeholder row", resource.ResourceName)
		return []Row{{
			ResourceName: resource.ResourceName,
			ResourceID:   resource.ResourceID,
			Partition:    noPartition,
		}}, nil
	}
	sort.Strings(partitions)
	log.Debugf(c, "%q has %d partitions", resource.ResourceName, len(partitions))

	rows := make([]Row, 0, len(partitions))
	for _, partition := range partitions {
		row := Row{
			ResourceName: resource.ResourceName,
			ResourceID:   resource.ResourceID,
			Partition:    partition,
		}
		metrics := make([]api.MetricQuery, 0, len(diskMetrics))
		for _, name := range diskMetrics {
			metrics = append(metrics, api.MetricQuery{MetricName: name, MetricNodeName: partition})
		}
		items, err := c.api.FetchPerformance(ctx, c.opt.PoolID, &api.PerformanceRequest{
			StartTime:              startTime,
			EndTime:                endTime,
			ResourceID:             resource.ResourceID,
			ProductType:            c.opt.ProductType,
			PerformanceDataAggType: "MAX",
			Metrics:                metrics,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Logf(c, "performance data for %q %s failed: %v, keeping zero values", resource.ResourceName, partition, err)
		}
		for _, item := range items {
			if item.AvgValue == nil {
				continue
			}
			switch item.MetricName {
			case metricDiskTotal:
				row.TotalGB = round2(*item.AvgValue)
			case metricDiskUsed:
				row.UsedGB = round2(*item.AvgValue)
			case metricDiskPercent:
				row.UsedPercent = round2(*item.AvgValue)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

package diskusage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ecloudtools/ecollect/ecloud/api"
)

func f64(v float64) *float64 { return &v }

type fakeAPI struct {
	mu         sync.Mutex
	resources  []api.Resource
	indicators []api.MetricIndicator
	nodes      map[string][]string
	perf       map[string][]api.PerformanceItem
	nodesErr   error
	perfErr    error
	perfCalls  int
}

func (f *fakeAPI) ListResources(ctx context.Context, poolID, productType string) ([]api.Resource, error) {
	return f.resources, nil
}

func (f *fakeAPI) MetricIndicators(ctx context.Context, poolID, productType string) ([]api.MetricIndicator, error) {
	return f.indicators, nil
}

func (f *fakeAPI) MetricNodes(ctx context.Context, poolID, metricName, resourceID string) ([]string, error) {
	if f.nodesErr != nil {
		return nil, f.nodesErr
	}
	return f.nodes[resourceID], nil
}

func (f *fakeAPI) FetchPerformance(ctx context.Context, poolID string, req *api.PerformanceRequest) ([]api.PerformanceItem, error) {
	f.mu.Lock()
	f.perfCalls++
	f.mu.Unlock()
	if f.perfErr != nil {
		return nil, f.perfErr
	}
	return f.perf[req.ResourceID+"/"+req.Metrics[0].MetricNodeName], nil
}

var diskIndicators = []api.MetricIndicator{
	{MetricName: "vm_realtime_disk_total", Unit: "GB"},
	{MetricName: "vm_realtime_disk_used", Unit: "GB"},
	{MetricName: "vm_realtime_disk_percent", Unit: "%"},
	{MetricName: "vm_cpu_util", Unit: "%"},
}

func TestCollect(t *testing.T) {
	f := &fakeAPI{
		resources: []api.Resource{
			{ResourceID: "r1", ResourceName: "vm-1"},
			{ResourceID: "r2", ResourceName: "vm-2"},
		},
		indicators: diskIndicators,
		nodes: map[string][]string{
			"r1": {"/data", "/"},
			"r2": {"/"},
		},
		perf: map[string][]api.PerformanceItem{
			"r1//": {
				{MetricName: "vm_realtime_disk_total", AvgValue: f64(100)},
				{MetricName: "vm_realtime_disk_used", AvgValue: f64(42.4242)},
				{MetricName: "vm_realtime_disk_percent", AvgValue: f64(42.42)},
			},
			"r1//data": {
				{MetricName: "vm_realtime_disk_total", AvgValue: f64(500)},
				{MetricName: "vm_realtime_disk_used", AvgValue: f64(10)},
				{MetricName: "vm_realtime_disk_percent", AvgValue: f64(2)},
			},
			"r2//": {
				{MetricName: "vm_realtime_disk_total", AvgValue: f64(50)},
				{MetricName: "vm_realtime_disk_used", AvgValue: nil},
			},
		},
	}
	c := New(f, Options{PoolID: "p1"})
	rows, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Listing order by resource, partitions sorted within a resource
	assert.Equal(t, Row{
		ResourceName: "vm-1",
		ResourceID:   "r1",
		Partition:    "/",
		TotalGB:      100,
		UsedGB:       42.42,
		UsedPercent:  42.42,
	}, rows[0])
	assert.Equal(t, "/data", rows[1].Partition)
	assert.Equal(t, 500.0, rows[1].TotalGB)

	// Nil avgValue keeps the zero default
	assert.Equal(t, "vm-2", rows[2].ResourceName)
	assert.Equal(t, 50.0, rows[2].TotalGB)
	assert.Equal(t, 0.0, rows[2].UsedGB)
}

func TestCollectPlaceholderRow(t *testing.T) {
	f := &fakeAPI{
		resources:  []api.Resource{{ResourceID: "r1", ResourceName: "vm-1"}},
		indicators: diskIndicators,
	}
	c := New(f, Options{PoolID: "p1"})
	rows, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{ResourceName: "vm-1", ResourceID: "r1", Partition: "N/A"}, rows[0])
	assert.Equal(t, 0, f.perfCalls, "no partitions means no performance fetch")
}

func TestCollectDegradesOnErrors(t *testing.T) {
	f := &fakeAPI{
		resources:  []api.Resource{{ResourceID: "r1", ResourceName: "vm-1"}},
		indicators: diskIndicators,
		nodes:      map[string][]string{"r1": {"/"}},
		perfErr:    errors.New("monitor error 999999: backend down"),
	}
	c := New(f, Options{PoolID: "p1"})
	rows, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].TotalGB)

	f.nodesErr = errors.New("monitor error 999999: backend down")
	rows, err = c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "N/A", rows[0].Partition)
}

func TestCollectNoResources(t *testing.T) {
	c := New(&fakeAPI{indicators: diskIndicators}, Options{PoolID: "p1"})
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no \"vm\" resources")
}

func TestCollectNoDiskMetrics(t *testing.T) {
	f := &fakeAPI{
		resources:  []api.Resource{{ResourceID: "r1", ResourceName: "vm-1"}},
		indicators: []api.MetricIndicator{{MetricName: "vm_cpu_util"}},
	}
	c := New(f, Options{PoolID: "p1"})
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no disk metrics")
}

func TestCollectNoPoolID(t *testing.T) {
	c := New(&fakeAPI{}, Options{})
	_, err := c.Collect(context.Background())
	require.Error(t, err)
}

func TestDefaultWindow(t *testing.T) {
	c := New(&fakeAPI{}, Options{PoolID: "p1"})
	assert.Equal(t, 24*time.Hour, c.opt.EndTime.Sub(c.opt.StartTime))
	assert.Equal(t, "vm", c.opt.ProductType)
	assert.Equal(t, 4, c.opt.Concurrency)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 42.42, round2(42.4242))
	assert.Equal(t, 42.43, round2(42.426))
	assert.Equal(t, 0.0, round2(0))
}

func TestWriteReport(t *testing.T) {
	rows := []Row{
		{ResourceName: "vm-1", ResourceID: "r1", Partition: "/", TotalGB: 100, UsedGB: 42.42, UsedPercent: 42.42},
		{ResourceName: "vm-2", ResourceID: "r2", Partition: "N/A"},
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteReport(rows, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	got, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, reportHeader, got[0])
	assert.Equal(t, []string{"vm-1", "r1", "/", "100", "42.42", "42.42"}, got[1])
}

func TestWriteReportEmpty(t *testing.T) {
	err := WriteReport(nil, filepath.Join(t.TempDir(), "report.xlsx"))
	require.Error(t, err)
}

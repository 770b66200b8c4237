// Package diskreport provides the diskreport command, which collects
// disk usage for every server in a pool into an Excel report.
package diskreport

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ecloudtools/ecollect/cmd"
	"github.com/ecloudtools/ecollect/collect/diskusage"
)

var (
	poolID      string
	productType = "vm"
	output      = "disk_usage_report.xlsx"
	startTime   string
	endTime     string
	concurrency = 4
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	cmdFlags.StringVar(&poolID, "pool-id", "", "Resource pool id (required)")
	cmdFlags.StringVar(&productType, "product-type", productType, "Product type to report on")
	cmdFlags.StringVarP(&output, "output", "o", output, "Output xlsx file")
	cmdFlags.StringVar(&startTime, "start-time", "", "Window start, format '2006-01-02 15:04:05' (default 24h before end)")
	cmdFlags.StringVar(&endTime, "end-time", "", "Window end, format '2006-01-02 15:04:05' (default now)")
	cmdFlags.IntVar(&concurrency, "concurrency", concurrency, "Resources fetched in parallel")
}

// parseWindowTime parses a --start-time/--end-time value
func parseWindowTime(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid --%s", name)
	}
	return t, nil
}

var commandDefinition = &cobra.Command{
	Use:   "diskreport",
	Short: `Collect disk usage for a pool into an Excel report.`,
	Long: `Diskreport lists every server in the resource pool, reads the disk
capacity, usage and usage percentage of each partition over the query
window and writes one row per partition to an xlsx workbook.

A credential is required since the monitor OpenAPI only accepts signed
requests.

For example:

    ecollect diskreport --pool-id CIDC-RP-01 -o report.xlsx
`,
	RunE: func(command *cobra.Command, args []string) error {
		cmd.CheckArgs(0, 0, command, args)
		if poolID == "" {
			return errors.New("--pool-id is required")
		}
		start, err := parseWindowTime("start-time", startTime)
		if err != nil {
			return err
		}
		end, err := parseWindowTime("end-time", endTime)
		if err != nil {
			return err
		}
		client, err := cmd.NewClient(true)
		if err != nil {
			return err
		}
		collector := diskusage.New(client, diskusage.Options{
			PoolID:      poolID,
			ProductType: productType,
			StartTime:   start,
			EndTime:     end,
			Concurrency: concurrency,
		})
		rows, err := collector.Collect(context.Background())
		if err != nil {
			return err
		}
		if err := diskusage.WriteReport(rows, output); err != nil {
			return err
		}
		fmt.Printf("wrote %d rows to %s\n", len(rows), output)
		return nil
	},
}

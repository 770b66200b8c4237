// Collect documentation and monitoring data from China Mobile ECloud
package main

import (
	"github.com/ecloudtools/ecollect/cmd"

	// Active command line subcommands
	_ "github.com/ecloudtools/ecollect/cmd/diskreport"
	_ "github.com/ecloudtools/ecollect/cmd/docs"
	_ "github.com/ecloudtools/ecollect/cmd/sign"
	_ "github.com/ecloudtools/ecollect/cmd/version"
)

func main() {
	cmd.Main()
}

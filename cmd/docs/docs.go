// Package docs provides the docs command, which downloads the
// help-center API documentation as Markdown.
package docs

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ecloudtools/ecollect/cmd"
	"github.com/ecloudtools/ecollect/collect/docs"
)

var opt docs.Options

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	cmdFlags.StringVar(&opt.Category, "category", "", "Documentation category id to collect")
	cmdFlags.StringVar(&opt.OutlineID, "outline-id", "", "Outline id to collect (overrides --category)")
	cmdFlags.StringVar(&opt.ArticleID, "article-id", "", "Single article id to collect (overrides both)")
	cmdFlags.StringVarP(&opt.OutputDir, "output", "o", "api_docs", "Directory to write the documentation to")
}

var commandDefinition = &cobra.Command{
	Use:   "docs",
	Short: `Download the API documentation as Markdown.`,
	Long: `Docs walks the help-center documentation tree and writes it to the
output directory, mirroring the tree: branch nodes become directories,
articles become Markdown files with their published PDF (when there is
one) saved next to them.

With no selection flags the whole documentation tree is collected.
These calls are unsigned so no credential is needed.
`,
	RunE: func(command *cobra.Command, args []string) error {
		cmd.CheckArgs(0, 0, command, args)
		client, err := cmd.NewClient(false)
		if err != nil {
			return err
		}
		return docs.New(client, opt).Collect(context.Background())
	},
}

// Package sign provides the sign command, which signs a request and
// prints the result without sending anything.
package sign

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ecloudtools/ecollect/cmd"
	"github.com/ecloudtools/ecollect/ecloud/auth"
)

var method = "GET"

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	cmdFlags.StringVarP(&method, "method", "X", method, "HTTP method to sign for")
}

var commandDefinition = &cobra.Command{
	Use:   "sign path [key=value]...",
	Short: `Sign a request and print the signed query string.`,
	Long: `Sign builds the signed query string for the given servlet path and
parameters using the configured credential, and prints the canonical
query string, the string to sign and the final signed query.  Useful
for debugging signature mismatches against the ECloud OpenAPI.

For example:

    ecollect sign /api/edw/openapi/version2/v1/dawn/monitor/resources poolId=CIDC-RP-01
`,
	RunE: func(command *cobra.Command, args []string) error {
		cmd.CheckArgs(1, 100, command, args)
		cred, err := cmd.Credential()
		if err != nil {
			return err
		}
		if cred == nil {
			return errors.New("an AccessKey and SecretKey are required - see --access-key and --secret-key")
		}
		path := args[0]
		params := map[string]string{}
		for _, arg := range args[1:] {
			key, value, err := splitParam(arg)
			if err != nil {
				return err
			}
			params[key] = value
		}
		signer := auth.NewSigner(cred)
		signed := signer.SignRequest(method, path, params)
		// Reconstruct what was signed by dropping the signature itself
		unsigned := make(map[string]string, len(signed))
		for key, value := range signed {
			if key != auth.ParamSignature {
				unsigned[key] = value
			}
		}
		canonical := auth.CanonicalQueryString(unsigned)
		fmt.Printf("canonical query: %s\n", canonical)
		fmt.Printf("string to sign:  %q\n", auth.StringToSign(method, path, canonical))
		fmt.Printf("signed query:    %s\n", auth.CanonicalQueryString(signed))
		return nil
	},
}

// splitParam splits "key=value" into its parts
func splitParam(arg string) (key, value string, err error) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			if i == 0 {
				break
			}
			return arg[:i], arg[i+1:], nil
		}
	}
	return "", "", errors.Errorf("parameter %q is not in key=value form", arg)
}

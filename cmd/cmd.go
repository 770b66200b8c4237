// Package cmd implements the ecollect command
//
// It is in a sub package so it's internals can be re-used elsewhere
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/Unknwon/goconfig"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ecloudtools/ecollect/ecloud"
	"github.com/ecloudtools/ecollect/ecloud/auth"
	"github.com/ecloudtools/ecollect/lib/log"
)

// Globals
var (
	// Flags
	verbose    int
	accessKey  string
	secretKey  string
	apiURL     string
	portalURL  string
	configPath string
)

const (
	exitCodeSuccess = iota
	exitCodeUsageError
	exitCodeUncategorizedError
)

// defaultConfigFile is looked up in the home directory when --config
// is not given
const defaultConfigFile = ".ecollect.conf"

// Root is the main ecollect command
var Root = &cobra.Command{
	Use:   "ecollect",
	Short: "Collect documentation and monitoring data from ECloud.",
	Long: `ecollect talks to the China Mobile ECloud APIs.  It downloads the
help-center API documentation as Markdown and collects disk usage
reports from the monitor OpenAPI.

Monitor calls need an AccessKey/SecretKey pair, given with the
--access-key and --secret-key flags, the ECLOUD_ACCESS_KEY and
ECLOUD_SECRET_KEY environment variables, or a config file (default
~/` + defaultConfigFile + `):

    access_key = your-ak
    secret_key = your-sk

Flags win over environment variables which win over the config file.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addFlags(Root.PersistentFlags())
	cobra.OnInitialize(initConfig)
}

// addFlags attaches the global flags to the flag set given
func addFlags(persistentFlags *pflag.FlagSet) {
	persistentFlags.CountVarP(&verbose, "verbose", "v", "Print lots more stuff (repeat for more)")
	persistentFlags.StringVar(&accessKey, "access-key", "", "ECloud AccessKey ID")
	persistentFlags.StringVar(&secretKey, "secret-key", "", "ECloud SecretKey")
	persistentFlags.StringVar(&apiURL, "api-url", "", "Monitor OpenAPI endpoint (default "+ecloud.DefaultAPIURL+")")
	persistentFlags.StringVar(&portalURL, "portal-url", "", "Help-center portal endpoint")
	persistentFlags.StringVar(&configPath, "config", "", "Config file (default ~/"+defaultConfigFile+")")
}

// initConfig is run by cobra after initialising the flags
func initConfig() {
	log.SetVerbosity(verbose)
}

// CheckArgs checks there are enough arguments and prints a message if not
func CheckArgs(MinArgs, MaxArgs int, cmd *cobra.Command, args []string) {
	if len(args) < MinArgs {
		_ = cmd.Usage()
		fmt.Fprintf(os.Stderr, "Command %s needs %d arguments minimum: you provided %d non flag arguments: %q\n", cmd.Name(), MinArgs, len(args), args)
		os.Exit(exitCodeUsageError)
	} else if len(args) > MaxArgs {
		_ = cmd.Usage()
		fmt.Fprintf(os.Stderr, "Command %s needs %d arguments maximum: you provided %d non flag arguments: %q\n", cmd.Name(), MaxArgs, len(args), args)
		os.Exit(exitCodeUsageError)
	}
}

var (
	configOnce sync.Once
	configFile *goconfig.ConfigFile
)

// loadConfigFile reads the config file once.  A missing file is not an
// error, it just contributes nothing.
func loadConfigFile() *goconfig.ConfigFile {
	configOnce.Do(func() {
		path := configPath
		if path == "" {
			home, err := homedir.Dir()
			if err != nil {
				log.Debugf(nil, "couldn't find home directory: %v", err)
				return
			}
			path = filepath.Join(home, defaultConfigFile)
		}
		cfg, err := goconfig.LoadConfigFile(path)
		if err != nil {
			if configPath != "" {
				log.Errorf(nil, "failed to load config file %q: %v", path, err)
			}
			return
		}
		log.Debugf(nil, "using config file %q", path)
		configFile = cfg
	})
	return configFile
}

// resolve returns the first of flag value, environment variable and
// config file key that is set.
func resolve(flagValue, envName, configKey string) string {
	if flagValue != "" {
		return flagValue
	}
	if value := os.Getenv(envName); value != "" {
		return value
	}
	if cfg := loadConfigFile(); cfg != nil {
		if value, err := cfg.GetValue(goconfig.DEFAULT_SECTION, configKey); err == nil && value != "" {
			return value
		}
	}
	return ""
}

// Credential resolves the AccessKey/SecretKey pair, or returns nil if
// neither is configured.
func Credential() (*auth.Credential, error) {
	ak := resolve(accessKey, "ECLOUD_ACCESS_KEY", "access_key")
	sk := resolve(secretKey, "ECLOUD_SECRET_KEY", "secret_key")
	if ak == "" && sk == "" {
		return nil, nil
	}
	return auth.NewCredential(ak, sk)
}

// NewClient makes an ecloud client from the global configuration.
//
// If requireCredential is set it is an error to have no credential
// configured, otherwise the client is portal-only.
func NewClient(requireCredential bool) (*ecloud.Client, error) {
	cred, err := Credential()
	if err != nil {
		return nil, err
	}
	if cred == nil && requireCredential {
		return nil, errors.New("an AccessKey and SecretKey are required - see --access-key and --secret-key")
	}
	return ecloud.New(http.DefaultClient, ecloud.Options{
		Credential: cred,
		APIURL:     resolve(apiURL, "ECLOUD_API_URL", "api_url"),
		PortalURL:  portalURL,
	}), nil
}

// Main runs ecollect interpreting flags and commands out of os.Args
func Main() {
	if err := Root.Execute(); err != nil {
		log.Errorf(nil, "%v", err)
		os.Exit(exitCodeUncategorizedError)
	}
	os.Exit(exitCodeSuccess)
}

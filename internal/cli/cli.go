package cli

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// The command line surface: global options with environment fallbacks and
// the builtin subcommands.

// Environment variables consulted when the corresponding flag is unset.
const (
	envHost         = "NETCONF_HOST"
	envUsername     = "NETCONF_USERNAME"
	envPassword     = "NETCONF_PASSWORD"
	envWithDefaults = "NETCONF_WITH_DEFAULTS"
)

// Execute runs the netconf command. Errors surfacing here happened before
// fan-out; per-host failures are logged and do not affect the exit code.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cfg := &Config{}
	var quiet bool

	root := &cobra.Command{
		Use:           "netconf",
		Short:         "NETCONF client for network devices",
		Long:          "Issue NETCONF rpcs against one or more network devices over ssh.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringSliceVar(&cfg.Hosts, "host", nil, "Host for netconf connection (repeatable, comma separated, default port 830)")
	pf.StringVar(&cfg.Username, "username", "", "Username for netconf connection")
	pf.StringVar(&cfg.Password, "password", "", "Password for netconf connection")
	pf.CountVarP(&cfg.Verbosity, "verbose", "v", "Use verbose output (-vv to log rpc responses, -vvv to log rpc requests as well)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Disable logging completely")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if len(cfg.Hosts) == 0 {
			if env := os.Getenv(envHost); env != "" {
				cfg.Hosts = strings.Split(env, ",")
			}
		}
		if cfg.Username == "" {
			cfg.Username = os.Getenv(envUsername)
		}
		if cfg.Password == "" {
			cfg.Password = os.Getenv(envPassword)
		}
		if len(cfg.Hosts) == 0 {
			return errors.New("no hosts provided: use --host or NETCONF_HOST")
		}

		cfg.Logger = newLogger(cfg.Verbosity, quiet)
		cfg.loadSSHConfig()
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if cfg.Logger != nil {
			_ = cfg.Logger.Sync()
		}
	}

	root.AddCommand(
		newGetCommand(cfg),
		newGetConfigCommand(cfg),
		newNotificationCommand(cfg),
	)
	return root
}

// withDefaultsFlag resolves the --with-defaults value, falling back to the
// environment.
func withDefaultsFlag(value string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envWithDefaults)
}

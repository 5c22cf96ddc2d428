package cli

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/networkguild/netconf"
)

func newGetCommand(cfg *Config) *cobra.Command {
	var (
		filterPath string
		defaults   string
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Execute get rpc",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := readFilter(filterPath)
			if err != nil {
				return err
			}
			withDefaults, err := parseWithDefaults(defaults)
			if err != nil {
				return err
			}

			Fanout(cmd.Context(), cfg, func(ctx context.Context, log *zap.Logger, session netconf.Session) error {
				resp, err := session.Get(filter, withDefaults)
				if err != nil {
					return err
				}
				log.Info("Response:\n" + resp)
				return nil
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&filterPath, "filter", "f", "", "File containing the subtree filter (required, use get-config without filter)")
	_ = cmd.MarkFlagRequired("filter")
	cmd.Flags().StringVar(&defaults, "with-defaults", "", "With-defaults option (report-all, report-all-tagged, trim, explicit)")

	return cmd
}

func readFilter(path string) (*netconf.Filter, error) {
	if path == "" {
		return nil, nil
	}
	fragment, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read filter file %s", path)
	}
	return netconf.SubtreeFilter(string(fragment)), nil
}

func parseWithDefaults(value string) (netconf.WithDefaultsValue, error) {
	value = withDefaultsFlag(value)
	if value == "" {
		return "", nil
	}
	return netconf.ParseWithDefaults(value)
}

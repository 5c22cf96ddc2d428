package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/networkguild/netconf"
)

func newGetConfigCommand(cfg *Config) *cobra.Command {
	var (
		source     string
		filterPath string
		defaults   string
	)

	cmd := &cobra.Command{
		Use:   "get-config",
		Short: "Execute get-config rpc",
		RunE: func(cmd *cobra.Command, args []string) error {
			datastore, err := netconf.ParseDatastore(source)
			if err != nil {
				return err
			}
			filter, err := readFilter(filterPath)
			if err != nil {
				return err
			}
			withDefaults, err := parseWithDefaults(defaults)
			if err != nil {
				return err
			}

			Fanout(cmd.Context(), cfg, func(ctx context.Context, log *zap.Logger, session netconf.Session) error {
				resp, err := session.GetConfig(datastore, filter, withDefaults)
				if err != nil {
					return err
				}
				log.Info("Response:\n" + resp)
				return nil
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "running", "Datastore to get config from (running, startup, candidate)")
	cmd.Flags().StringVarP(&filterPath, "filter", "f", "", "File containing the subtree filter")
	cmd.Flags().StringVar(&defaults, "with-defaults", "", "With-defaults option (report-all, report-all-tagged, trim, explicit)")

	return cmd
}

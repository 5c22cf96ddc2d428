package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/networkguild/netconf"
)

// Query used by --get to list the event streams the device offers.
const streamsQuery = `<netconf xmlns="urn:ietf:params:xml:ns:netmod:notification"><streams/></netconf>`

func newNotificationCommand(cfg *Config) *cobra.Command {
	var (
		stream     string
		filterPath string
		getStreams bool
	)

	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Start netconf notification listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			if getStreams {
				Fanout(cmd.Context(), cfg, func(ctx context.Context, log *zap.Logger, session netconf.Session) error {
					resp, err := session.Get(netconf.SubtreeFilter(streamsQuery), "")
					if err != nil {
						return err
					}
					log.Info("Available notification streams:\n" + resp)
					return nil
				})
				return nil
			}

			filter, err := readFilter(filterPath)
			if err != nil {
				return err
			}

			// The receive loop runs until the peer stops sending or the user
			// interrupts.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			Fanout(ctx, cfg, func(ctx context.Context, log *zap.Logger, session netconf.Session) error {
				return session.Notification(ctx, func(msg string) error {
					log.Info("Notification:\n" + msg)
					return nil
				}, stream, filter, 0)
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&stream, "stream", "s", "NETCONF", "Stream to subscribe to")
	cmd.Flags().StringVarP(&filterPath, "filter", "f", "", "File containing the subtree filter")
	cmd.Flags().BoolVarP(&getStreams, "get", "g", false, "Get available notification streams and exit")

	return cmd
}

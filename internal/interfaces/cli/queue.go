package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/FediSent-Analytics/internal/config"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	redisq "github.com/turtacn/FediSent-Analytics/internal/infrastructure/queue/redis"
)

// newQueueClient is a seam for tests.
var newQueueClient = func(cfg config.QueueConfig, logger logging.Logger) (*redisq.Client, error) {
	return redisq.NewClient(cfg, logger)
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the intake queue",
	}
	cmd.AddCommand(newQueueStatsCmd(), newQueueClearCmd())
	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			client, err := newQueueClient(cliCtx.Config.Queue, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer client.Close()

			queue := redisq.NewQueue(client, cliCtx.Config.Queue.Name)
			depth, err := queue.Len(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queue: %s\ndepth: %d\n", queue.Name(), depth)
			return nil
		},
	}
}

func newQueueClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every pending item from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the queue without --yes")
			}

			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			client, err := newQueueClient(cliCtx.Config.Queue, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer client.Close()

			queue := redisq.NewQueue(client, cliCtx.Config.Queue.Name)
			removed, err := queue.Clear(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d items from %s\n", removed, queue.Name())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive clear")
	return cmd
}

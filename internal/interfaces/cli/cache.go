package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	redisq "github.com/turtacn/FediSent-Analytics/internal/infrastructure/queue/redis"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared enrichment cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

// newCacheClearCmd invalidates cached enrichment results under a key prefix.
// Used after a model redeploy, when stale aspect or sentiment entries would
// otherwise survive until their TTL.
func newCacheClearCmd() *cobra.Command {
	var prefix string
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached enrichment entries under a prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
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

			cache := redisq.NewRedisCache(client, cliCtx.Logger,
				redisq.WithPrefix(cliCtx.Config.Cache.KeyPrefix))
			deleted, err := cache.DeleteByPrefix(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d cache entries\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix to delete (empty deletes the whole namespace)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive clear")
	return cmd
}

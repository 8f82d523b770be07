package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/FediSent-Analytics/internal/config"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/search/opensearch"
)

// newStoreGateway is a seam for tests.
var newStoreGateway = func(cfg *config.Config, logger logging.Logger) (*opensearch.Gateway, error) {
	client, err := opensearch.NewClient(opensearch.ClientConfig{
		Addresses:           []string{cfg.Store.Host},
		Username:            cfg.Store.User,
		Password:            cfg.Store.Password,
		InsecureSkipVerify:  cfg.Store.InsecureSkipVerify,
		HealthCheckInterval: time.Hour,
	}, logger)
	if err != nil {
		return nil, err
	}

	return opensearch.NewGateway(client, opensearch.GatewayConfig{
		IndexPrefix:    cfg.Store.IndexPrefix,
		MaxRetries:     cfg.Worker.MaxRetries,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay(),
	}, logger), nil
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the document store schema",
	}
	cmd.AddCommand(newSchemaEnsureCmd(), newSchemaBackfillCmd())
	return cmd
}

func newSchemaEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Apply the index template and create the current period index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			gateway, err := newStoreGateway(cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}

			if err := gateway.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema ensured\nindex: %s\nemotions mode: %s\n",
				gateway.CurrentIndex(), gateway.EmotionsMode())
			return nil
		},
	}
}

func newSchemaBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-flat",
		Short: "Populate emotions_flat on documents that predate the field",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			gateway, err := newStoreGateway(cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}

			updated, err := gateway.BackfillEmotionsFlat(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d documents\n", updated)
			return nil
		},
	}
}

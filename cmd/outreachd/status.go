package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivelane/outreach/internal/config"
)

func newSweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the dormancy sweep once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sys, _, err := buildSystem(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			defer sys.Close(context.Background())

			sys.Start(ctx)
			res, err := sys.RunSweep(ctx)
			if err != nil {
				return err
			}
			if err := sys.Drain(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sweep done: %d scanned, %d follow-ups, %d skipped\n",
				res.Scanned, res.Published, res.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "outreach.yaml", "path to config file")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		campaignID string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sessions of a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sys, _, err := buildSystem(cfg)
			if err != nil {
				return err
			}
			defer sys.Close(context.Background())

			ctx := cmd.Context()
			campaign, err := sys.Campaign(ctx, campaignID)
			if err != nil {
				return err
			}
			sessions, err := sys.Sessions(ctx, campaignID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Campaign %s (%s): %s, %d sessions\n",
				campaign.ID, campaign.Name, campaign.Status, len(sessions))
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tSTATUS\tWAITING ON\tLAST ACTIVITY")
			for _, sess := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					sess.ProviderID, sess.Status, sess.ExpectedNextEvent,
					sess.LastActivityAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "outreach.yaml", "path to config file")
	cmd.Flags().StringVar(&campaignID, "id", "", "campaign id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

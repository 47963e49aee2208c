package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/internal/config"
)

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage recruitment campaigns",
	}
	cmd.AddCommand(newCampaignStartCmd())
	cmd.AddCommand(newCampaignStopCmd())
	return cmd
}

func newCampaignStartCmd() *cobra.Command {
	var (
		configPath       string
		campaignID       string
		buyerID          string
		name             string
		requirementsPath string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a campaign and send the initial outreach",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaignStart(cmd, configPath, campaignID, buyerID, name, requirementsPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "outreach.yaml", "path to config file")
	cmd.Flags().StringVar(&campaignID, "id", "", "campaign id (lowercase slug)")
	cmd.Flags().StringVar(&buyerID, "buyer", "", "buyer id requesting the campaign")
	cmd.Flags().StringVar(&name, "name", "", "human-readable campaign name")
	cmd.Flags().StringVar(&requirementsPath, "requirements", "", "path to requirements JSON file")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("requirements")
	return cmd
}

func runCampaignStart(cmd *cobra.Command, configPath, campaignID, buyerID, name, requirementsPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	data, err := os.ReadFile(requirementsPath)
	if err != nil {
		return fmt.Errorf("read requirements: %w", err)
	}
	var requirements core.Requirements
	if err := json.Unmarshal(data, &requirements); err != nil {
		return fmt.Errorf("parse requirements: %w", err)
	}

	sys, _, err := buildSystem(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	defer sys.Close(context.Background())

	sys.Start(ctx)
	if err := sys.StartCampaign(ctx, campaignID, buyerID, name, requirements); err != nil {
		return err
	}
	if err := sys.Drain(ctx); err != nil {
		return err
	}

	sessions, err := sys.Sessions(ctx, campaignID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s started: %d providers invited\n", campaignID, len(sessions))
	return nil
}

func newCampaignStopCmd() *cobra.Command {
	var (
		configPath string
		campaignID string
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a campaign; its sessions freeze in place",
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
			if err := sys.StopCampaign(cmd.Context(), campaignID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s stopped\n", campaignID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "outreach.yaml", "path to config file")
	cmd.Flags().StringVar(&campaignID, "id", "", "campaign id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

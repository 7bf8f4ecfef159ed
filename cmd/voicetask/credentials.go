package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicetask/internal/credentials"
)

var (
	speechKeyFlag    string
	workspaceKeyFlag string
	databaseIDFlag   string
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage API credentials",
}

var credentialsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save API credentials",
	Long: `Save credentials for this device. Only the flags given are changed.
Saved credentials are also handed to the backup broker when enabled.

Examples:
  voicetask credentials save --speech-key sk-...
  voicetask credentials save --workspace-key secret_... --database-id 1f2e...`,
	Args: cobra.NoArgs,
	RunE: runCredentialsSave,
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show which credentials are set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		creds := a.session.Credentials
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, titleStyle.Render("Credentials"))
		fmt.Fprintf(w, "  speech key:     %s\n", mask(creds.Get(credentials.SpeechAPIKey)))
		fmt.Fprintf(w, "  workspace key:  %s\n", mask(creds.Get(credentials.TaskDBAPIKey)))
		fmt.Fprintf(w, "  database id:    %s\n", mask(creds.Get(credentials.TaskDBID)))
		fmt.Fprintf(w, "  device:         %s\n", dimStyle.Render(a.coordinator.Store().Device().Tag()))
		return nil
	},
}

var credentialsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored credentials and their backup copy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.coordinator.Clear(cmd.Context()); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("Credentials cleared on this device, but the backup copy could not be removed. Run the command again when the backup service is reachable."))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Credentials cleared."))
		return nil
	},
}

var credentialsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Drop expired credential entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		a.coordinator.Store().SweepExpired(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Expired credentials removed."))
		return nil
	},
}

func init() {
	credentialsSaveCmd.Flags().StringVar(&speechKeyFlag, "speech-key", "", "speech service API key")
	credentialsSaveCmd.Flags().StringVar(&workspaceKeyFlag, "workspace-key", "", "workspace integration key")
	credentialsSaveCmd.Flags().StringVar(&databaseIDFlag, "database-id", "", "workspace database ID")

	credentialsCmd.AddCommand(credentialsSaveCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)
	credentialsCmd.AddCommand(credentialsClearCmd)
	credentialsCmd.AddCommand(credentialsSweepCmd)
}

func runCredentialsSave(cmd *cobra.Command, _ []string) error {
	speechKey := strings.TrimSpace(speechKeyFlag)
	workspaceKey := strings.TrimSpace(workspaceKeyFlag)
	databaseID := strings.TrimSpace(databaseIDFlag)

	update := credentials.Set{}
	if speechKey != "" {
		if err := credentials.ValidateSpeechKey(speechKey); err != nil {
			return err
		}
		update[credentials.SpeechAPIKey] = speechKey
	}
	if workspaceKey != "" {
		update[credentials.TaskDBAPIKey] = workspaceKey
	}
	if databaseID != "" {
		update[credentials.TaskDBID] = databaseID
	}
	if update.Empty() {
		return fmt.Errorf("nothing to save: pass --speech-key, --workspace-key or --database-id")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	merged := a.coordinator.Store().Get(cmd.Context()).Merge(update)
	if err := a.coordinator.SaveWithBackup(cmd.Context(), merged); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Credentials saved."))
	return nil
}

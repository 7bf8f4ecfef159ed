package main

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicetask/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Credential backup service",
}

var backupServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the embedded broker and the backup service",
	Long: `Start an embedded NATS broker and answer credential backup, restore,
clear and sync requests until interrupted. Each copy is bound to the
device that saved it and is only restored to that same device.`,
	Args: cobra.NoArgs,
	RunE: runBackupServe,
}

func init() {
	backupCmd.AddCommand(backupServeCmd)
}

func runBackupServe(cmd *cobra.Command, _ []string) error {
	b, err := loadBase(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()
	cfg := b.cfg

	if err := cfg.EnsureStorageDir(); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	ns, err := backup.StartEmbedded(cfg.Backup.ServeHost, cfg.Backup.ServePort)
	if err != nil {
		return err
	}
	defer func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	}()

	nc, err := nats.Connect(ns.ClientURL(), nats.Name("voicetask-backup"))
	if err != nil {
		return fmt.Errorf("failed to connect to embedded broker: %w", err)
	}
	defer nc.Close()

	svc, err := backup.NewService(nc, backup.ServiceConfig{
		Subject:   cfg.Backup.Subject,
		StorePath: cfg.BackupStorePath(),
		TTL:       cfg.Backup.TTL.Duration(),
	}, b.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			b.logger.Warn("failed to close backup service", zap.Error(err))
		}
	}()
	if err := svc.Start(); err != nil {
		return err
	}

	b.logger.Info("backup service running",
		zap.String("url", ns.ClientURL()),
		zap.String("subject", cfg.Backup.Subject))
	fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("Backup service listening on "+ns.ClientURL()))

	<-cmd.Context().Done()
	b.logger.Info("backup service stopping")
	return nil
}

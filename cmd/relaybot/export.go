package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"relaybot/internal/config"
	"relaybot/internal/directory"
	"relaybot/internal/export"
	logx "relaybot/pkg/logx"
)

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the user directory export to a file (or stdout)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logx.NewConsole(cfg.Logging.Level)
			if cfg.Directory.Driver == config.DirectoryMemory {
				log.Warn("directory driver is memory; the export will be empty")
			}
			dir, err := directory.Open(directory.Config{
				Driver:      cfg.Directory.Driver,
				Path:        cfg.Directory.Path,
				BusyTimeout: cfg.BusyTimeout(),
			}, log)
			if err != nil {
				return err
			}
			defer dir.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ExportTimeout())
			defer cancel()
			art, err := export.Build(ctx, dir, time.Now())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(art.Data)
				return err
			}
			if err := os.WriteFile(out, art.Data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d users to %s\n", art.Count, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

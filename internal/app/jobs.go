package app

import (
	"context"
	"fmt"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/export"
	"relaybot/internal/metrics"
	"relaybot/internal/scheduler"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const (
	jobExport     = "export.owner"
	jobUsersGauge = "directory.users"
)

func (a *App) registerJobs(cfg *config.Config) error {
	if err := a.sched.Add(scheduler.Job{
		Name:    jobUsersGauge,
		Spec:    "1m",
		Timeout: 10 * time.Second,
		Run:     a.refreshUsersGauge,
	}); err != nil {
		return err
	}
	return a.syncExportJob(cfg)
}

// syncExportJob adds, replaces or removes the scheduled export to match
// export.schedule.
func (a *App) syncExportJob(cfg *config.Config) error {
	if cfg.Export.Schedule == "" {
		if a.sched.Remove(jobExport) {
			a.log.Info("scheduled export disabled")
		}
		return nil
	}
	owner := cfg.Telegram.OwnerID
	caption := cfg.Texts.ExportCaption
	if err := a.sched.Add(scheduler.Job{
		Name:    jobExport,
		Spec:    cfg.Export.Schedule,
		Timeout: cfg.ExportTimeout(),
		Run: func(ctx context.Context) error {
			return a.sendExport(ctx, owner, caption)
		},
	}); err != nil {
		return fmt.Errorf("export.schedule: %w", err)
	}
	a.log.Info("scheduled export enabled", logx.String("schedule", cfg.Export.Schedule))
	return nil
}

func (a *App) sendExport(ctx context.Context, owner int64, caption string) error {
	art, err := export.Build(ctx, a.dir, time.Now())
	if err != nil {
		return err
	}
	metrics.SetUsers(art.Count)
	_, err = a.tr.SendDocument(ctx, kit.ChatTarget{ChatID: owner}, kit.Document{
		Name:    art.Name,
		Data:    art.Data,
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("send export: %w", err)
	}
	a.log.Info("scheduled export sent", logx.Int("users", art.Count))
	return nil
}

func (a *App) refreshUsersGauge(ctx context.Context) error {
	n, err := a.dir.Count(ctx)
	if err != nil {
		return err
	}
	metrics.SetUsers(n)
	return nil
}

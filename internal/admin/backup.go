package admin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// BackupRetention сколько хранятся дампы
const BackupRetention = 31 * 24 * time.Hour

// Alerter уведомления владельцу (logger.Notifier)
type Alerter interface {
	NotifyAdmin(msg string)
}

// runFunc запускает внешнюю команду; подменяется в тестах
type runFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

// Backuper дампы Postgres через pg_dump в локальный каталог
type Backuper struct {
	dsn   string
	dir   string
	run   runFunc
	now   func() time.Time
	alert Alerter
	log   *zap.Logger
}

func NewBackuper(dsn, dir string, alert Alerter, log *zap.Logger) *Backuper {
	if dir == "" {
		dir = "backups"
	}
	return &Backuper{dsn: dsn, dir: dir, run: execRun, now: time.Now, alert: alert, log: log}
}

// Backup создаёт дамп prefix_YYYYMMDD_HHMMSS.dump и возвращает путь
func (b *Backuper) Backup(ctx context.Context, prefix string) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	filename := filepath.Join(b.dir, prefix+"_"+b.now().Format("20060102_150405")+".dump")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := b.run(ctx, "pg_dump", b.dsn, "-Fc", "-f", filename); err != nil {
		return "", err
	}
	return filename, nil
}

// Restore восстанавливает дамп из каталога бэкапов; путь вне каталога не принимается
func (b *Backuper) Restore(ctx context.Context, name string) error {
	filename := filepath.Join(b.dir, filepath.Base(name))
	if _, err := os.Stat(filename); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return b.run(ctx, "pg_restore", "--clean", "--if-exists", "-d", b.dsn, filename)
}

// CleanOld удаляет дампы старше retention, возвращает число удалённых
func (b *Backuper) CleanOld(retention time.Duration) (int, error) {
	files, err := filepath.Glob(filepath.Join(b.dir, "*backup_*.dump"))
	if err != nil {
		return 0, err
	}
	cutoff := b.now().Add(-retention)
	removed := 0
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(f); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// RunAuto ежедневный бэкап из cron
func (b *Backuper) RunAuto(ctx context.Context) {
	filename, err := b.Backup(ctx, "autobackup")
	if err != nil {
		b.log.Error("auto backup failed", zap.Error(err))
		if b.alert != nil {
			b.alert.NotifyAdmin("Auto backup failed: " + err.Error())
		}
		return
	}
	removed, err := b.CleanOld(BackupRetention)
	if err != nil {
		b.log.Warn("backup cleanup failed", zap.Error(err))
	}
	b.log.Info("auto backup created", zap.String("file", filename), zap.Int("removed_old", removed))
}

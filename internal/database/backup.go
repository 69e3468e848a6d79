package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reservation-engine/internal/config"

	"github.com/rs/zerolog"
)

const (
	backupPrefix          = "reservations_"
	backupSuffix          = ".db"
	defaultBackupInterval = 24 * time.Hour
)

// BackupService snapshots the live database into StoragePath and prunes
// snapshots older than the retention window.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *BackupService) interval() time.Duration {
	if s.config.Schedule == "" {
		return defaultBackupInterval
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Failed to parse backup schedule, using default 24h")
		return defaultBackupInterval
	}
	return d
}

// Start runs a backup immediately and then on every tick until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	every := s.interval()
	s.logger.Info().Dur("interval", every).Msg("Backup service started")

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup writes one snapshot and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + s.now().UTC().Format("20060102_150405") + backupSuffix
	path := filepath.Join(s.config.StoragePath, name)
	s.logger.Info().Str("path", path).Msg("Performing database backup using VACUUM INTO")

	quoted := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		if s.db.Path() == memoryPath {
			return "", fmt.Errorf("failed to back up in-memory database: %w", err)
		}
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		if err := copyFile(s.db.Path(), path); err != nil {
			return "", fmt.Errorf("failed to copy database file: %w", err)
		}
	}

	s.logger.Info().Str("path", path).Msg("Backup completed successfully")
	return path, nil
}

// copyFile is not atomic for SQLite; concurrent writes may leave a torn copy.
func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	return err
}

// CleanupOldBackups removes snapshots older than RetentionDays. Files that
// were not written by the backup service are left alone.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", name).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, name)); err != nil {
				s.logger.Warn().Err(err).Str("file", name).Msg("Failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed
}

// Package probes implements file based readiness and liveness probes for
// orchestrators that check for the presence or freshness of a file.
package probes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// MarkReady creates the readiness file.
func MarkReady(fileName string) error {
	if err := touch(fileName); err != nil {
		return fmt.Errorf("failed to create readiness file: %w", err)
	}
	return nil
}

// MarkNotReady removes the readiness file. A missing file is not an error.
func MarkNotReady(fileName string) error {
	if err := os.Remove(fileName); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove readiness file: %w", err)
	}
	return nil
}

// RunLiveness touches fileName every interval until ctx is done, then removes it.
func RunLiveness(ctx context.Context, fileName string, interval time.Duration, logger *slog.Logger) error {
	if err := touch(fileName); err != nil {
		return fmt.Errorf("failed to create liveness file: %w", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := os.Remove(fileName); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove liveness file", "file", fileName, "error", err)
			}
			return nil
		case <-ticker.C:
			if err := touch(fileName); err != nil {
				logger.Error("failed to update liveness file", "file", fileName, "error", err)
			}
		}
	}
}

func touch(fileName string) error {
	now := time.Now()
	if err := os.Chtimes(fileName, now, now); err == nil {
		return nil
	}
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	return f.Close()
}

// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package evidence

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepOutcome summarizes one retention pass.
type SweepOutcome struct {
	Deleted    int
	Compressed int
}

// Sweep deletes bundles older than the retention window and compresses
// bundles older than the compression window into .tar.gz files. The
// run index is left in place; it is the durable record of what ran.
func (c *Collector) Sweep(ctx context.Context, now time.Time) (SweepOutcome, error) {
	var outcome SweepOutcome

	entries, err := os.ReadDir(c.cfg.Root)
	if err != nil {
		return outcome, fmt.Errorf("cannot scan evidence root: %w", err)
	}

	deleteBefore := now.AddDate(0, 0, -c.cfg.RetentionDays)
	compressBefore := now.AddDate(0, 0, -c.cfg.CompressionAfterDays)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		path := filepath.Join(c.cfg.Root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		age := info.ModTime()

		switch {
		case entry.IsDir() && age.Before(deleteBefore):
			if err := os.RemoveAll(path); err != nil {
				c.cfg.Logger.Warn("failed to delete aged bundle", zap.String("bundle", entry.Name()), zap.Error(err))
				continue
			}
			outcome.Deleted++
		case !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tar.gz") && age.Before(deleteBefore):
			if err := os.Remove(path); err != nil {
				c.cfg.Logger.Warn("failed to delete aged archive", zap.String("archive", entry.Name()), zap.Error(err))
				continue
			}
			outcome.Deleted++
		case entry.IsDir() && c.cfg.CompressionAfterDays > 0 && age.Before(compressBefore):
			if err := compressBundle(path); err != nil {
				c.cfg.Logger.Warn("failed to compress bundle", zap.String("bundle", entry.Name()), zap.Error(err))
				continue
			}
			if err := os.RemoveAll(path); err != nil {
				c.cfg.Logger.Warn("failed to remove compressed bundle", zap.String("bundle", entry.Name()), zap.Error(err))
				continue
			}
			outcome.Compressed++
		}
	}

	c.cfg.Logger.Info("retention sweep complete",
		zap.Int("deleted", outcome.Deleted),
		zap.Int("compressed", outcome.Compressed),
	)
	return outcome, nil
}

// ScheduleSweeps runs Sweep on a cron schedule until the returned stop
// function is called. The caller typically also sweeps once at
// shutdown.
func (c *Collector) ScheduleSweeps(spec string) (stop func(), err error) {
	scheduler := cron.New()
	_, err = scheduler.AddFunc(spec, func() {
		if _, err := c.Sweep(context.Background(), time.Now()); err != nil {
			c.cfg.Logger.Warn("scheduled retention sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	scheduler.Start()
	return func() { scheduler.Stop() }, nil
}

// compressBundle packs a bundle directory into <dir>.tar.gz.
func compressBundle(dir string) error {
	out, err := os.Create(dir + ".tar.gz")
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	base := filepath.Base(dir)
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(base, rel))
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return out.Close()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchCacheFile starts an fsnotify watcher on the cache directory and
// calls Refresh(false) whenever the cache blob is written by another
// process sharing the same cache directory. This is best-effort: watch
// setup and event-handling errors are logged and swallowed, since this
// is purely a freshness optimization over the TTL-based reload that
// already happens on every Refresh call. The returned stop function
// closes the watcher; callers should defer it.
func (c *Catalog) WatchCacheFile(ctx context.Context) (stop func(), err error) {
	if c.cfg.Mode != CacheModeFile || c.cfg.Directory == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(c.cfg.Directory); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Join(c.cfg.Directory, cacheFileName)
	done := make(chan struct{})

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.Refresh(ctx, false); err != nil {
					c.logger.Warn("catalog: auto-reload refresh failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("catalog: cache watcher error", "error", err)
			}
		}
	}()

	return func() { close(done) }, nil
}

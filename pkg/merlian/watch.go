package merlian

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/merlian/merlian/pkg/jobs"
)

// watchDebounce 文件事件到触发增量索引的静默窗口
const watchDebounce = 2 * time.Second

// Watch 监听素材库目录，文件变化静默一段时间后自动增量索引
// 阻塞到ctx取消为止
func (m *Merlian) Watch(ctx context.Context, libraryRef string, opts jobs.IndexOptions) error {
	lib, err := m.ResolveLibrary(libraryRef)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// 递归注册现有目录，fsnotify不会自动跟进子目录
	err = filepath.WalkDir(lib.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != lib.Path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return err
	}

	log := logrus.WithField("library", lib.Path)
	log.Info("watching for changes")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// 新建的子目录也要纳入监听
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !strings.HasPrefix(filepath.Base(ev.Name), ".") {
						watcher.Add(ev.Name)
					}
				}
			}

			dirty = true
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")

		case <-timer.C:
			if !dirty {
				continue
			}
			dirty = false

			jobID, err := m.jobs.Submit(ctx, lib.ID, opts)
			if errors.Is(err, jobs.ErrJobConflict) {
				// 上一轮还没跑完，留到下一个静默窗口
				dirty = true
				timer.Reset(watchDebounce)
				continue
			}
			if err != nil {
				log.WithError(err).Warn("failed to submit incremental index")
				continue
			}
			log.WithField("job", jobID).Info("incremental index triggered")
		}
	}
}

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/logger"
)

const watchDebounce = 2 * time.Second

// Watcher triggers incremental scans when library directories change on disk.
// Events are debounced per section so a burst of writes (a download finishing,
// a rsync run) causes one scan, not hundreds.
type Watcher struct {
	sections *catalog.SectionRepository
	trigger  func(sectionID uint)

	mu      sync.Mutex
	fw      *fsnotify.Watcher
	dirs    map[string]uint // watched directory → owning section
	pending map[uint]*time.Timer
}

func NewWatcher(sections *catalog.SectionRepository, trigger func(sectionID uint)) *Watcher {
	return &Watcher{
		sections: sections,
		trigger:  trigger,
		dirs:     make(map[string]uint),
		pending:  make(map[uint]*time.Timer),
	}
}

// Run watches every section root until the context ends. New subdirectories
// are added to the watch set as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fw = fw
	w.mu.Unlock()
	defer fw.Close()

	sections, err := w.sections.List()
	if err != nil {
		return err
	}
	for _, section := range sections {
		for _, loc := range section.Locations {
			w.addTree(loc.RootPath, section.ID)
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("filesystem watch error", "error", err)
		}
	}
}

// AddSection starts watching a newly created section's roots.
func (w *Watcher) AddSection(sectionID uint) {
	section, err := w.sections.GetByID(sectionID)
	if err != nil {
		logger.Warn("cannot watch unknown section", "section", sectionID, "error", err)
		return
	}
	for _, loc := range section.Locations {
		w.addTree(loc.RootPath, section.ID)
	}
}

func (w *Watcher) addTree(root string, sectionID uint) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		w.addDir(path, sectionID)
		return nil
	})
}

func (w *Watcher) addDir(path string, sectionID uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fw == nil {
		return
	}
	if _, ok := w.dirs[path]; ok {
		return
	}
	if err := w.fw.Add(path); err != nil {
		logger.Warn("cannot watch directory", "path", path, "error", err)
		return
	}
	w.dirs[path] = sectionID
}

func (w *Watcher) handle(event fsnotify.Event) {
	dir := filepath.Dir(event.Name)
	w.mu.Lock()
	sectionID, ok := w.dirs[dir]
	if !ok {
		sectionID, ok = w.dirs[event.Name]
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTree(event.Name, sectionID)
		}
	}
	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		w.schedule(sectionID)
	}
}

// schedule arms (or re-arms) the section's debounce timer.
func (w *Watcher) schedule(sectionID uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[sectionID]; ok {
		timer.Reset(watchDebounce)
		return
	}
	w.pending[sectionID] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, sectionID)
		w.mu.Unlock()
		w.trigger(sectionID)
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, timer := range w.pending {
		timer.Stop()
		delete(w.pending, id)
	}
}

package plugins

import (
	"github.com/FocuswithJustin/picman/internal/logging"
)

// AddUndoGroup records the undo nesting of image before the plug-in opens
// a group on it. Only the first call per image counts.
func (f *Frame) AddUndoGroup(image Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := image.ID()
	for _, e := range f.undo {
		if e.image == image && e.id == id {
			return
		}
	}
	f.undo = append(f.undo, undoEntry{image: image, id: id, depth: image.UndoGroupCount()})
}

// RemoveUndoGroup is called before the plug-in closes a group on image. It
// fails when the plug-in never opened one there, and forgets the image
// once closing this group brings it back to the recorded depth.
func (f *Frame) RemoveUndoGroup(image Image) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.undo {
		if e.image == image {
			if image.UndoGroupCount()-1 <= e.depth {
				f.undo = append(f.undo[:i], f.undo[i+1:]...)
			}
			return true
		}
	}
	return false
}

// AddShadow records that a shadow buffer was allocated on drawable.
func (f *Frame) AddShadow(drawable Drawable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := drawable.ID()
	for _, e := range f.shadows {
		if e.drawable == drawable && e.id == id {
			return
		}
	}
	f.shadows = append(f.shadows, shadowEntry{drawable: drawable, id: id})
}

// RemoveShadow forgets drawable after the plug-in freed its shadow.
func (f *Frame) RemoveShadow(drawable Drawable) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.shadows {
		if e.drawable == drawable {
			f.shadows = append(f.shadows[:i], f.shadows[i+1:]...)
			return true
		}
	}
	return false
}

func (f *Frame) store() ImageStore {
	if f.owner == nil || f.owner.manager == nil {
		return nil
	}
	return f.owner.manager.images
}

// cleanup repairs what the plug-in left behind. Entries whose object was
// destroyed, or whose id now names another object, are skipped.
func (f *Frame) cleanup() {
	f.mu.Lock()
	undo, shadows := f.undo, f.shadows
	f.undo, f.shadows = nil, nil
	progressStarted := f.progressStarted
	f.progressStarted = false
	f.mu.Unlock()

	var prog string
	verbose := false
	if f.owner != nil {
		prog = f.owner.prog
		if f.owner.manager != nil {
			verbose = f.owner.manager.cfg.VerboseCleanup
		}
	}

	if store := f.store(); store != nil {
		for _, e := range undo {
			live := store.Image(e.id)
			if live == nil || live != e.image || live.ID() != e.id {
				logging.Debug("skipping stale undo cleanup", "prog", prog, "image", e.id)
				continue
			}
			if live.UndoGroupCount() > e.depth {
				logging.CleanupRepair(prog, "undo-group", e.id,
					"detail", "Plug-in left image undo in inconsistent state, closing open undo groups.")
				for live.UndoGroupCount() > e.depth {
					if !live.UndoGroupEnd() {
						break
					}
				}
			}
		}

		for _, e := range shadows {
			live := store.Drawable(e.id)
			if live == nil || live != e.drawable || live.ID() != e.id {
				logging.Debug("skipping stale shadow cleanup", "prog", prog, "drawable", e.id)
				continue
			}
			if live.HasShadow() {
				if verbose {
					logging.CleanupRepair(prog, "shadow", e.id,
						"detail", "Freeing shadow buffer the plug-in left behind.")
				} else {
					logging.Debug("freeing shadow buffer", "prog", prog, "drawable", e.id)
				}
				live.FreeShadow()
			}
		}
	}

	if progressStarted && f.Caller.Progress != nil && f.Caller.Progress.IsActive() {
		f.Caller.Progress.End()
	}
}

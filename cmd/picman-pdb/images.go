package main

import (
	"sync"

	"github.com/FocuswithJustin/picman/core/plugins"
)

// memStore is a minimal image model for running plug-ins from the command
// line: blank images with a single drawable each.
type memStore struct {
	mu        sync.Mutex
	nextID    int32
	images    map[int32]*memImage
	drawables map[int32]*memDrawable
	tileW     int
	tileH     int
}

func newMemStore(tileW, tileH int) *memStore {
	return &memStore{
		nextID:    1,
		images:    make(map[int32]*memImage),
		drawables: make(map[int32]*memDrawable),
		tileW:     tileW,
		tileH:     tileH,
	}
}

// NewImage creates an image with one drawable of the given size and bytes
// per pixel and returns both ids.
func (s *memStore) NewImage(width, height, bpp int) (imageID, drawableID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := &memImage{id: s.nextID}
	drw := &memDrawable{
		id:     s.nextID + 1,
		width:  width,
		height: height,
		bpp:    bpp,
		tileW:  s.tileW,
		tileH:  s.tileH,
		pixels: make([]byte, width*height*bpp),
	}
	s.nextID += 2
	s.images[img.id] = img
	s.drawables[drw.id] = drw
	return img.id, drw.id
}

// Image and Drawable return nil interfaces, not typed nils, for unknown ids.
func (s *memStore) Image(id int32) plugins.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.images[id]; ok {
		return img
	}
	return nil
}

func (s *memStore) Drawable(id int32) plugins.Drawable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.drawables[id]; ok {
		return d
	}
	return nil
}

type memImage struct {
	id    int32
	mu    sync.Mutex
	depth int
}

func (i *memImage) ID() int32 { return i.id }

func (i *memImage) UndoGroupCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.depth
}

func (i *memImage) UndoGroupStart(string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.depth++
	return true
}

func (i *memImage) UndoGroupEnd() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.depth == 0 {
		return false
	}
	i.depth--
	return true
}

type memDrawable struct {
	id            int32
	width, height int
	bpp           int
	tileW, tileH  int

	mu     sync.Mutex
	pixels []byte
	shadow []byte
}

func (d *memDrawable) ID() int32 { return d.id }

// tileRect returns the pixel rectangle of tile num, tiles numbered row by
// row. Edge tiles are cropped to the drawable.
func (d *memDrawable) tileRect(num uint32) (x, y, w, h int, ok bool) {
	cols := (d.width + d.tileW - 1) / d.tileW
	rows := (d.height + d.tileH - 1) / d.tileH
	if cols == 0 || int(num) >= cols*rows {
		return 0, 0, 0, 0, false
	}
	x = int(num) % cols * d.tileW
	y = int(num) / cols * d.tileH
	w = min(d.tileW, d.width-x)
	h = min(d.tileH, d.height-y)
	return x, y, w, h, true
}

func (d *memDrawable) ReadTile(num uint32, shadow bool) (plugins.Tile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	x, y, w, h, ok := d.tileRect(num)
	if !ok {
		return plugins.Tile{}, false
	}
	src := d.pixels
	if shadow {
		if d.shadow == nil {
			d.shadow = make([]byte, len(d.pixels))
		}
		src = d.shadow
	}
	data := make([]byte, 0, w*h*d.bpp)
	for row := y; row < y+h; row++ {
		off := (row*d.width + x) * d.bpp
		data = append(data, src[off:off+w*d.bpp]...)
	}
	return plugins.Tile{Bpp: uint32(d.bpp), Width: uint32(w), Height: uint32(h), Data: data}, true
}

func (d *memDrawable) WriteTile(num uint32, shadow bool, t plugins.Tile) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	x, y, w, h, ok := d.tileRect(num)
	if !ok || int(t.Width) != w || int(t.Height) != h || int(t.Bpp) != d.bpp || len(t.Data) < w*h*d.bpp {
		return false
	}
	dst := d.pixels
	if shadow {
		if d.shadow == nil {
			d.shadow = make([]byte, len(d.pixels))
		}
		dst = d.shadow
	}
	for row := 0; row < h; row++ {
		off := ((y+row)*d.width + x) * d.bpp
		copy(dst[off:off+w*d.bpp], t.Data[row*w*d.bpp:])
	}
	return true
}

func (d *memDrawable) HasShadow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shadow != nil
}

func (d *memDrawable) FreeShadow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shadow = nil
}

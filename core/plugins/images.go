package plugins

// ImageStore gives plug-ins access to the image model by numeric id. The
// host's image model implements it; plug-in code never sees the objects
// themselves, only their ids.
//
// Implementations must return the same comparable value (normally a
// pointer) for the same live object, because cleanup compares identities.
type ImageStore interface {
	Image(id int32) Image
	Drawable(id int32) Drawable
}

// Image is the part of an image the plug-in core touches: its undo group
// nesting.
type Image interface {
	ID() int32
	UndoGroupCount() int
	UndoGroupStart(name string) bool
	UndoGroupEnd() bool
}

// Tile is one rectangle of drawable pixels.
type Tile struct {
	Bpp    uint32
	Width  uint32
	Height uint32
	Data   []byte
}

// Drawable is a pixel surface plug-ins read and write tile by tile. Writes
// to the shadow buffer allocate it on demand.
type Drawable interface {
	ID() int32
	ReadTile(num uint32, shadow bool) (Tile, bool)
	WriteTile(num uint32, shadow bool, tile Tile) bool
	HasShadow() bool
	FreeShadow()
}

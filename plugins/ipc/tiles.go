package ipc

import (
	"fmt"

	"github.com/FocuswithJustin/picman/core/protocol"
)

// Tile is one rectangle of drawable pixels.
type Tile struct {
	Bpp    uint32
	Width  uint32
	Height uint32
	Data   []byte
}

func (t Tile) size() int { return int(t.Bpp * t.Width * t.Height) }

// GetTile fetches tile num of a drawable, from its shadow buffer when
// shadow is set.
func (p *PlugIn) GetTile(drawable int32, num uint32, shadow bool) (Tile, error) {
	if err := p.send(protocol.MsgTileReq, &protocol.TileReq{DrawableID: drawable, TileNum: num, Shadow: shadow}); err != nil {
		return Tile{}, err
	}
	msg, err := p.expect(protocol.MsgTileData)
	if err != nil {
		return Tile{}, err
	}
	defer p.registry.Destroy(msg)
	td := msg.Data.(*protocol.TileData)
	if td.DrawableID != drawable || td.TileNum != num || td.Shadow != shadow {
		return Tile{}, fmt.Errorf("received tile info did not match computed tile info")
	}

	tile := Tile{Bpp: td.Bpp, Width: td.Width, Height: td.Height}
	if td.UseShm {
		p.mu.Lock()
		shm := p.shm
		p.mu.Unlock()
		if shm == nil || tile.size() > len(shm) {
			return Tile{}, fmt.Errorf("tile sent through shared memory the plug-in cannot see")
		}
		tile.Data = append([]byte(nil), shm[:tile.size()]...)
	} else {
		tile.Data = append([]byte(nil), td.Data...)
	}

	if err := p.send(protocol.MsgTileAck, nil); err != nil {
		return Tile{}, err
	}
	return tile, nil
}

// PutTile writes tile num of a drawable.
func (p *PlugIn) PutTile(drawable int32, num uint32, shadow bool, tile Tile) error {
	if len(tile.Data) != tile.size() {
		return fmt.Errorf("tile holds %d bytes, expected %d", len(tile.Data), tile.size())
	}
	if err := p.send(protocol.MsgTileReq, &protocol.TileReq{DrawableID: -1}); err != nil {
		return err
	}
	msg, err := p.expect(protocol.MsgTileData)
	if err != nil {
		return err
	}
	useShm := msg.Data.(*protocol.TileData).UseShm
	p.registry.Destroy(msg)

	out := &protocol.TileData{
		DrawableID: drawable,
		TileNum:    num,
		Shadow:     shadow,
		Bpp:        tile.Bpp,
		Width:      tile.Width,
		Height:     tile.Height,
	}
	p.mu.Lock()
	shm := p.shm
	p.mu.Unlock()
	if useShm && shm != nil && tile.size() <= len(shm) {
		copy(shm, tile.Data)
		out.UseShm = true
	} else {
		out.Data = tile.Data
	}
	if err := p.send(protocol.MsgTileData, out); err != nil {
		return err
	}
	_, err = p.expect(protocol.MsgTileAck)
	return err
}

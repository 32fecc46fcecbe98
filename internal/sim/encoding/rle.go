// Package encoding packs map layers into compact wire strings for the
// observer feed.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"surveyor.ai/internal/sim/world"
)

// EncodeTerrain packs a row-major terrain layer into base64(varint pairs),
// each pair one (class, run length) stretch. Planet maps are mostly plains,
// so runs stay long and the payload small.
func EncodeTerrain(cells []world.Terrain) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(cells); {
		class := cells[i]
		run := 1
		for j := i + 1; j < len(cells) && cells[j] == class; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(class))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeTerrain unpacks an EncodeTerrain payload. want is the cell count the
// map dimensions demand; a payload expanding to anything else is rejected.
func DecodeTerrain(b64 string, want int) ([]world.Terrain, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]world.Terrain, 0, want)
	for i := 0; i < len(raw); {
		class, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if class > uint64(world.TerrainRidge) {
			return nil, fmt.Errorf("terrain class out of range: %d", class)
		}
		if uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("terrain overflows %d cells", want)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, world.Terrain(class))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("terrain has %d cells, want %d", len(out), want)
	}
	return out, nil
}

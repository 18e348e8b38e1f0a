package bplus

import (
	"encoding/binary"
	"fmt"

	"storagecore/storage/page"
	"storagecore/types"
)

// Node page layout (little-endian). Byte 8 is the page-type stamp the
// disk manager writes on every WritePage call, so the codec leaves it
// untouched both on encode and decode.
//
//	Offset  Size  Field
//	0       8     (reserved, shared LSN slot — unused by index pages)
//	8       1     (page-type stamp, written by the disk manager)
//	9       1     isLeaf
//	10      2     numKeys
//	12      8     localParent   (-1 if none)
//	20      8     localPrevLeaf (-1 if none, leaf only)
//	28      8     localNextLeaf (-1 if none, leaf only)
//	36      4     (reserved)
//	40            headerSize
//
//	body: numKeys × [ keyLen uint16 | key bytes ]
//	leaf:     numKeys × [ Rid: global heap PageID int64 | slot uint32 ]  (12 bytes each)
//	internal: numKeys × [ localChildID int64 ]                    (8 bytes each)
const (
	offIsLeaf   = 9
	offNumKeys  = 10
	offParent   = 12
	offPrevLeaf = 20
	offNextLeaf = 28

	headerSize = 40

	ridEncodedSize = 12
)

func localOf(fileID uint32, id types.PageID) int64 {
	if id == types.InvalidPageID {
		return -1
	}
	return int64(id.LocalPageNo())
}

func globalOf(fileID uint32, local int64) types.PageID {
	if local < 0 {
		return types.InvalidPageID
	}
	return types.NewPageID(fileID, uint32(local))
}

func encodeNode(n *node, fileID uint32, data []byte) error {
	if len(data) != page.Size {
		return fmt.Errorf("bplus: encode buffer must be %d bytes, got %d", page.Size, len(data))
	}

	if n.isLeaf() {
		data[offIsLeaf] = 1
	} else {
		data[offIsLeaf] = 0
	}
	binary.LittleEndian.PutUint16(data[offNumKeys:], uint16(len(n.keys)))
	binary.LittleEndian.PutUint64(data[offParent:], uint64(localOf(fileID, n.parent)))
	binary.LittleEndian.PutUint64(data[offPrevLeaf:], uint64(localOf(fileID, n.prevLeaf)))
	binary.LittleEndian.PutUint64(data[offNextLeaf:], uint64(localOf(fileID, n.nextLeaf)))

	offset := headerSize
	for _, key := range n.keys {
		if offset+2+len(key) > page.Size {
			return fmt.Errorf("bplus: node overflow while writing keys")
		}
		binary.LittleEndian.PutUint16(data[offset:], uint16(len(key)))
		offset += 2
		copy(data[offset:], key)
		offset += len(key)
	}

	if n.isLeaf() {
		for _, rid := range n.values {
			if offset+ridEncodedSize > page.Size {
				return fmt.Errorf("bplus: node overflow while writing values")
			}
			binary.LittleEndian.PutUint64(data[offset:], uint64(rid.PageID))
			binary.LittleEndian.PutUint32(data[offset+8:], rid.Slot)
			offset += ridEncodedSize
		}
	} else {
		for _, child := range n.children {
			if offset+8 > page.Size {
				return fmt.Errorf("bplus: node overflow while writing children")
			}
			binary.LittleEndian.PutUint64(data[offset:], uint64(localOf(fileID, child)))
			offset += 8
		}
	}

	return nil
}

func decodeNode(data []byte, fileID uint32, pageID types.PageID) (*node, error) {
	if len(data) != page.Size {
		return nil, fmt.Errorf("bplus: decode buffer must be %d bytes, got %d", page.Size, len(data))
	}

	n := &node{pageID: pageID}
	if data[offIsLeaf] == 1 {
		n.kind = nodeLeaf
	} else {
		n.kind = nodeInternal
	}
	numKeys := int(binary.LittleEndian.Uint16(data[offNumKeys:]))
	n.parent = globalOf(fileID, int64(binary.LittleEndian.Uint64(data[offParent:])))
	n.prevLeaf = globalOf(fileID, int64(binary.LittleEndian.Uint64(data[offPrevLeaf:])))
	n.nextLeaf = globalOf(fileID, int64(binary.LittleEndian.Uint64(data[offNextLeaf:])))

	offset := headerSize
	n.keys = make([]types.Key, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		if offset+2 > page.Size {
			return nil, fmt.Errorf("bplus: overflow reading key %d length", i)
		}
		keyLen := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+keyLen > page.Size {
			return nil, fmt.Errorf("bplus: overflow reading key %d data", i)
		}
		key := make(types.Key, keyLen)
		copy(key, data[offset:offset+keyLen])
		offset += keyLen
		n.keys = append(n.keys, key)
	}

	if n.isLeaf() {
		n.values = make([]types.Rid, 0, numKeys)
		for i := 0; i < numKeys; i++ {
			if offset+ridEncodedSize > page.Size {
				return nil, fmt.Errorf("bplus: overflow reading value %d", i)
			}
			ridPage := types.PageID(int64(binary.LittleEndian.Uint64(data[offset:])))
			slot := binary.LittleEndian.Uint32(data[offset+8:])
			n.values = append(n.values, types.Rid{PageID: ridPage, Slot: slot})
			offset += ridEncodedSize
		}
	} else {
		n.children = make([]types.PageID, 0, numKeys)
		for i := 0; i < numKeys; i++ {
			if offset+8 > page.Size {
				return nil, fmt.Errorf("bplus: overflow reading child %d", i)
			}
			local := int64(binary.LittleEndian.Uint64(data[offset:]))
			n.children = append(n.children, globalOf(fileID, local))
			offset += 8
		}
	}

	return n, nil
}

package content

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"

	"github.com/onexay/contentvs/internal/types"
)

// ComputeHash digests a node's title, bodies and the ordered hashes of its
// children. Editors echo it back as last_hash.
func (vc *VersionedContent) ComputeHash(id NodeID) (string, error) {
	if _, err := vc.node(id); err != nil {
		return "", err
	}
	h := sha256.New()
	vc.writeNode(h, id)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (vc *VersionedContent) writeNode(h hash.Hash, id NodeID) {
	n := vc.nodes[id]
	writeField(h, n.kind.String())
	writeField(h, n.title)
	if n.kind == KindExtract {
		writeField(h, n.text)
		return
	}
	writeField(h, n.introduction)
	writeField(h, n.conclusion)
	writeField(h, strconv.Itoa(len(n.children)))
	for _, child := range n.children {
		vc.writeNode(h, child)
	}
}

func writeField(h hash.Hash, value string) {
	h.Write([]byte(strconv.Itoa(len(value))))
	h.Write([]byte{':'})
	h.Write([]byte(value))
}

// CheckHash enforces optimistic concurrency: lastHash must equal the node's
// current hash. An empty hash is a conflict as well.
func (vc *VersionedContent) CheckHash(id NodeID, lastHash string) error {
	current, err := vc.ComputeHash(id)
	if err != nil {
		return err
	}
	if lastHash == "" || lastHash != current {
		return &types.ConflictError{
			Resource: "node",
			Key:      strconv.Itoa(int(id)),
			Hint:     "the content was modified since it was loaded; reload it and apply your changes again",
		}
	}
	return nil
}

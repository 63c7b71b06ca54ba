package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/onexay/contentvs/internal/types"
)

// computeContentHash digests a snapshot independently of map ordering.
func computeContentHash(files types.Snapshot) string {
	h := sha256.New()
	for _, p := range files.Paths() {
		content := files[p]
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(len(content))))
		h.Write([]byte{0})
		h.Write([]byte(content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func computeCommitHash(repo, branch, parent, contentHash, message string, ts time.Time) string {
	payload := strings.Join([]string{
		repo,
		branch,
		parent,
		contentHash,
		message,
		ts.Format(time.RFC3339Nano),
	}, "\n")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func encodeSnapshot(files types.Snapshot) ([]byte, error) {
	return json.Marshal(files)
}

func decodeSnapshot(data []byte) (types.Snapshot, error) {
	files := make(types.Snapshot)
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, err
	}
	return files, nil
}

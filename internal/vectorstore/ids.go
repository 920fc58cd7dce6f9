package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fyrsmithlabs/ragstore/internal/sanitize"
)

// ContentID derives a stable document ID from its text.
// The same text always yields the same ID.
func ContentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// batch is an Add call normalized to equal-length columns.
type batch struct {
	ids       []string
	documents []string
	metadatas []map[string]interface{}
}

// newBatch aligns metadatas and ids to documents. Short lists are padded
// (content-hash IDs, empty metadata), surplus entries are ignored, and
// metadata is sanitized.
func newBatch(documents []string, metadatas []map[string]interface{}, ids []string) batch {
	b := batch{
		ids:       make([]string, len(documents)),
		documents: documents,
		metadatas: make([]map[string]interface{}, len(documents)),
	}
	for i, doc := range documents {
		if i < len(ids) && ids[i] != "" {
			b.ids[i] = ids[i]
		} else {
			b.ids[i] = ContentID(doc)
		}

		var meta map[string]interface{}
		if i < len(metadatas) {
			meta = metadatas[i]
		}
		b.metadatas[i] = sanitize.Metadata(meta)
	}
	return b
}

// dedupe keeps the last occurrence of each ID so a batch that repeats an ID
// behaves like consecutive upserts.
func (b batch) dedupe() batch {
	last := make(map[string]int, len(b.ids))
	for i, id := range b.ids {
		last[id] = i
	}
	if len(last) == len(b.ids) {
		return b
	}
	out := batch{}
	for i, id := range b.ids {
		if last[id] != i {
			continue
		}
		out.ids = append(out.ids, id)
		out.documents = append(out.documents, b.documents[i])
		out.metadatas = append(out.metadatas, b.metadatas[i])
	}
	return out
}

func (b batch) len() int { return len(b.ids) }

package vectorstore

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

const testVectorSize = 32

// conceptEmbedder maps words to fixed dimensions so related words share a
// direction. Unknown words hash into the remaining dimensions. Vectors are
// unit length.
type conceptEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

var testConcepts = map[string]int{
	"cat": 0, "cats": 0, "feline": 0, "kitten": 0, "purr": 0, "purrs": 0,
	"dog": 1, "dogs": 1, "canine": 1, "puppy": 1, "bark": 1, "barks": 1,
	"car": 2, "cars": 2, "vehicle": 2, "engine": 2, "drive": 2, "drives": 2,
}

func (e *conceptEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func (e *conceptEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *conceptEmbedder) Dimension() int { return testVectorSize }

func (e *conceptEmbedder) setFail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

func (e *conceptEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var errEmbedderDown = errors.New("embedding service unavailable")

func embedText(text string) []float32 {
	vec := make([]float32, testVectorSize)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"")
		if w == "" {
			continue
		}
		if dim, ok := testConcepts[w]; ok {
			vec[dim] += 3
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[3+int(h.Sum32()%uint32(testVectorSize-4))] += 0.5
	}
	// Bias dimension keeps every vector non-zero.
	vec[testVectorSize-1] = 0.1

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var testCorpus = struct {
	docs  []string
	metas []map[string]interface{}
	ids   []string
}{
	docs: []string{
		"The cat purrs on the mat",
		"A dog barks at the mailman",
		"The car needs a new engine",
	},
	metas: []map[string]interface{}{
		{"kind": "animal", "legs": 4, "tags": []string{"pet", "indoor"}},
		{"kind": "animal", "legs": 4, "loud": true},
		{"kind": "machine", "wheels": 4},
	},
	ids: []string{"a", "b", "c"},
}

package vectorstore

import (
	"bufio"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

var collectionHashPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// chromemMetadataFile is the per-collection metadata file chromem-go writes
// (without its .gob / .gob.gz extension).
const chromemMetadataFile = "00000000"

// NewResilientChromemDB opens a persistent chromem DB. A collection directory
// that holds documents but lost its metadata file would make the whole DB
// fail to load; such directories are moved to <path>/.quarantine and the load
// is retried.
func NewResilientChromemDB(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	corrupt, findErr := findCorruptCollections(path, logger)
	if findErr != nil {
		logger.Error("failed to scan for corrupt collections", zap.Error(findErr))
		return nil, err
	}
	if len(corrupt) == 0 {
		return nil, err
	}

	quarantinePath := filepath.Join(path, ".quarantine")
	if mkErr := os.MkdirAll(quarantinePath, 0755); mkErr != nil {
		logger.Error("failed to create quarantine directory", zap.Error(mkErr))
		return nil, err
	}

	for _, hash := range corrupt {
		if !collectionHashPattern.MatchString(hash) {
			logger.Error("invalid collection hash format, skipping", zap.String("hash", hash))
			continue
		}
		src := filepath.Join(path, hash)
		dst := filepath.Join(quarantinePath, hash)
		logger.Warn("quarantining corrupt collection",
			zap.String("collection_hash", hash),
			zap.String("to", dst),
		)
		if mvErr := os.Rename(src, dst); mvErr != nil {
			RecordQuarantineResult(false)
			logger.Error("failed to quarantine collection",
				zap.String("collection_hash", hash),
				zap.Error(mvErr),
			)
			continue
		}
		RecordQuarantineResult(true)
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("loading DB after quarantine: %w", err)
	}
	logger.Info("chromem DB loaded after quarantine", zap.Int("quarantined_count", len(corrupt)))
	return db, nil
}

// findCorruptCollections lists collection directories that have document
// files but no metadata file.
func findCorruptCollections(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var corrupt []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		if _, ok := metadataFilePath(dir); ok {
			continue
		}

		files, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("failed to read collection directory",
				zap.String("collection_hash", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		for _, f := range files {
			if !f.IsDir() && strings.Contains(f.Name(), ".gob") {
				corrupt = append(corrupt, entry.Name())
				break
			}
		}
	}
	return corrupt, nil
}

// chromemCollectionDir returns the directory chromem-go uses for a collection:
// the first 4 bytes of the name's SHA-256, hex encoded.
func chromemCollectionDir(root, name string) string {
	sum := sha256.Sum256([]byte(name))
	return filepath.Join(root, hex.EncodeToString(sum[:4]))
}

func metadataFilePath(dir string) (string, bool) {
	for _, ext := range []string{".gob", ".gob.gz"} {
		p := filepath.Join(dir, chromemMetadataFile+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// readCollectionMetadata reads the metadata chromem-go persisted for a
// collection. It returns nil, nil when the collection has not been created.
func readCollectionMetadata(root, name string) (map[string]string, error) {
	path, ok := metadataFilePath(chromemCollectionDir(root, name))
	if !ok {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening collection metadata: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening compressed metadata: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var persisted struct {
		Name     string
		Metadata map[string]string
	}
	if err := gob.NewDecoder(r).Decode(&persisted); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding collection metadata: %w", err)
	}
	if persisted.Metadata == nil {
		persisted.Metadata = map[string]string{}
	}
	return persisted.Metadata, nil
}

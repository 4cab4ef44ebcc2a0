package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	apperrors "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/errors"
)

// Load reads, parses and validates the document at path. Every failure wraps
// apperrors.ErrIndexLoad; callers treat it as "no index available".
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrIndexLoad, path, err)
	}
	if strings.HasSuffix(path, CompressedSuffix) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: creating zstd decoder: %w", apperrors.ErrIndexLoad, err)
		}
		data, err = dec.DecodeAll(data, nil)
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decompressing %s: %w", apperrors.ErrIndexLoad, path, err)
		}
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", apperrors.ErrIndexLoad, path, err)
	}
	if doc.FileIDMap == nil || doc.Index == nil {
		return nil, fmt.Errorf("%w: %s: missing fileIdMap or index", apperrors.ErrIndexLoad, path)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrIndexLoad, path, err)
	}
	return &doc, nil
}

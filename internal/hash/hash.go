// Package hash computes the content hashes that give files and blocks
// their stable identity.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// File returns the hex-encoded SHA-256 digest of file bytes.
func File(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Block returns the hex-encoded SHA-256 digest of a block's raw content.
// This is the Block.content_hash field, distinct from the block_id.
func Block(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// BlockID computes the stable block identity: the first 16 hex characters
// of SHA-256(file_path|start_line|end_line|block_type|chunk_index).
// Deterministic in those five inputs; stable across re-ingestions of the
// same fragment.
func BlockID(filePath string, startLine, endLine int, blockType string, chunkIndex int) string {
	key := fmt.Sprintf("%s|%d|%d|%s|%d", filePath, startLine, endLine, blockType, chunkIndex)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

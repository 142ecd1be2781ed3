package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"portfolio-vault/internal/domain"
)

// ComputeFactID computes a deterministic fact_id using SHA256.
// Formula: SHA256(emitter|seq|kind|timestamp), emitter in checksummed hex.
// Returns hex-encoded hash (64 characters).
func ComputeFactID(
	emitter common.Address,
	seq uint64,
	kind domain.FactKind,
	timestamp uint64,
) string {
	data := fmt.Sprintf("%s|%d|%s|%d",
		emitter.Hex(),
		seq,
		string(kind),
		timestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

// ComputeEventID computes a deterministic adjustment event_id using SHA256.
// Formula: SHA256(player_id|format|event_type|bucket)
// where bucket is the detection timestamp floored to bucketMs. Two detection
// runs that fire within the same bucket for the same player, format and type
// produce the same id, so the event store's primary-key constraint rejects
// the second insert and dedup needs no separate read.
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	playerID string,
	format domain.Format,
	eventType domain.AdjustmentType,
	detectedAtMs int64,
	bucketMs int64,
) string {
	bucket := detectedAtMs
	if bucketMs > 0 {
		bucket = detectedAtMs - (detectedAtMs % bucketMs)
	}

	data := fmt.Sprintf("%s|%s|%s|%d",
		playerID,
		string(format),
		string(eventType),
		bucket,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeCheckID computes a deterministic consistency check_id using SHA256.
// Formula: SHA256(epoch|started_at)
// Returns hex-encoded hash (64 characters).
func ComputeCheckID(epoch string, startedAtMs int64) string {
	data := fmt.Sprintf("%s|%d", epoch, startedAtMs)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

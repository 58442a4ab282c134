package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"stakevault/services/journal"
)

// JournalJSONL builds a JSON Lines export for the supplied journal entries and
// returns the serialised payload alongside a checksum.
func JournalJSONL(entries []journal.Entry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, entry := range entries {
		payload := map[string]interface{}{
			"log_index":   entry.LogIndex,
			"event_hash":  entry.EventHash,
			"kind":        entry.Kind,
			"account":     entry.Account,
			"amount":      amountOrZero(entry.Amount),
			"sequence":    entry.Sequence,
			"timestamp":   entry.Timestamp,
			"recorded_at": entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		}
		if entry.Credential != 0 {
			payload["credential_id"] = entry.Credential
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strconv"
	"time"

	"stakevault/services/journal"
)

// JournalCSV builds a CSV export for the supplied journal entries and returns
// the serialised data alongside a SHA-256 checksum of the payload.
func JournalCSV(entries []journal.Entry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"log_index", "event_hash", "kind", "account", "amount", "credential_id", "sequence", "timestamp", "recorded_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, entry := range entries {
		credential := ""
		if entry.Credential != 0 {
			credential = strconv.FormatUint(entry.Credential, 10)
		}
		record := []string{
			strconv.FormatInt(entry.LogIndex, 10),
			entry.EventHash,
			entry.Kind,
			entry.Account,
			amountOrZero(entry.Amount),
			credential,
			strconv.FormatUint(entry.Sequence, 10),
			strconv.FormatUint(entry.Timestamp, 10),
			entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func amountOrZero(amount string) string {
	if amount == "" {
		return "0"
	}
	return amount
}

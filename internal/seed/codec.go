// Package seed builds, publishes and installs the curated known-spam dataset.
package seed

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

// Serialize renders entries in canonical form: one "hash,category,score"
// line per entry, no header, newline-joined without a trailing newline.
func Serialize(entries []domain.SeedEntry) []byte {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s,%s,%s",
			e.NumberHash, e.Category, strconv.FormatFloat(e.Score, 'f', -1, 64)))
	}
	return []byte(strings.Join(lines, "\n"))
}

func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse reads canonical rows from r. Every row is validated; the first bad
// row aborts the parse.
func Parse(r io.Reader) ([]domain.SeedEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.ReuseRecord = true

	var entries []domain.SeedEntry
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed seed row %d: %v", domain.ErrValidation, line, err)
		}

		entry, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("%w: seed row %d: %v", domain.ErrValidation, line, err)
		}
		entries = append(entries, entry)
	}
}

func parseRow(record []string) (domain.SeedEntry, error) {
	hash := strings.ToLower(strings.TrimSpace(record[0]))
	if !domain.IsValidHash(hash) {
		return domain.SeedEntry{}, errors.New("invalid number hash")
	}
	category := domain.Category(strings.TrimSpace(record[1]))
	if !category.Valid() {
		return domain.SeedEntry{}, fmt.Errorf("unknown category %q", record[1])
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil || score < 0 || score > 1 {
		return domain.SeedEntry{}, fmt.Errorf("score %q out of range", record[2])
	}
	return domain.SeedEntry{NumberHash: domain.NumberHash(hash), Category: category, Score: score}, nil
}

// equalDigest compares two hex digests ignoring case.
func equalDigest(a, b string) bool {
	return bytes.EqualFold([]byte(strings.TrimSpace(a)), []byte(strings.TrimSpace(b)))
}

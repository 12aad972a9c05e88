package devicestore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

var (
	_ ports.PrefixRuleStore  = (*Store)(nil)
	_ ports.SeedStore        = (*Store)(nil)
	_ ports.EventStore       = (*Store)(nil)
	_ ports.HistoryStore     = (*Store)(nil)
	_ ports.PreferenceStore  = (*Store)(nil)
	_ ports.ContactDirectory = (*ContactSet)(nil)
)

// ContactSet is an in-memory address book keyed by number hash. Raw numbers
// are hashed on load and discarded.
type ContactSet struct {
	hashes map[domain.NumberHash]struct{}
}

func NewContactSet(hashes ...domain.NumberHash) *ContactSet {
	c := &ContactSet{hashes: make(map[domain.NumberHash]struct{}, len(hashes))}
	for _, h := range hashes {
		c.hashes[h] = struct{}{}
	}
	return c
}

// LoadContacts reads one raw number per line. Blank lines, lines starting
// with '#' and numbers that do not normalize are skipped.
func LoadContacts(path string, hasher *domain.Hasher) (*ContactSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contacts: %w", err)
	}
	defer f.Close()

	c := NewContactSet()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hash, err := hasher.Hash(line)
		if err != nil {
			continue
		}
		c.hashes[hash] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read contacts: %w", err)
	}
	return c, nil
}

func (c *ContactSet) IsContact(_ context.Context, hash domain.NumberHash) (bool, error) {
	_, ok := c.hashes[hash]
	return ok, nil
}

func (c *ContactSet) Len() int { return len(c.hashes) }

package blacklist

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Blacklist Store — flat-file deny list consulted before execution
// ---------------------------------------------------------------------------

// DefaultPath is the deny-list file used when none is configured.
const DefaultPath = "blacklist.json"

// fileFormat is the on-disk shape.
type fileFormat struct {
	Wallets []string `json:"wallets"`
	Socials []string `json:"socials"`
}

// Store holds banned creator wallets and social handles. The file is
// rewritten in normalized form on load and after every mutation, so a
// missing or corrupt file heals into a valid empty one.
type Store struct {
	path string

	mu      sync.RWMutex
	wallets map[string]struct{}
	socials map[string]struct{}
}

// Load reads the deny list at path, creating or rewriting the file as
// needed. A corrupt file is replaced by an empty list rather than
// refusing to start.
func Load(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{
		path:    path,
		wallets: make(map[string]struct{}),
		socials: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info().Str("path", path).Msg("blacklist: no file, creating empty list")
	case err != nil:
		return nil, fmt.Errorf("blacklist: read %s: %w", path, err)
	default:
		var file fileFormat
		if err := json.Unmarshal(data, &file); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("blacklist: corrupt file, resetting")
		} else {
			for _, w := range file.Wallets {
				if w != "" {
					s.wallets[w] = struct{}{}
				}
			}
			for _, h := range file.Socials {
				if h = normalizeHandle(h); h != "" {
					s.socials[h] = struct{}{}
				}
			}
		}
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	log.Info().
		Int("wallets", len(s.wallets)).
		Int("socials", len(s.socials)).
		Msg("blacklist: loaded")
	return s, nil
}

// BannedWallet reports whether a creator wallet (base58) is denied.
func (s *Store) BannedWallet(wallet string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.wallets[wallet]
	return ok
}

// BannedSocial reports whether a social handle or URL is denied.
// Matching is case-insensitive and ignores a leading "@".
func (s *Store) BannedSocial(handle string) bool {
	h := normalizeHandle(handle)
	if h == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.socials[h]
	return ok
}

// BanWallet adds a wallet and persists the file.
func (s *Store) BanWallet(wallet string) error {
	if wallet == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[wallet] = struct{}{}
	return s.persistLocked()
}

// BanSocial adds a social handle and persists the file.
func (s *Store) BanSocial(handle string) error {
	h := normalizeHandle(handle)
	if h == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socials[h] = struct{}{}
	return s.persistLocked()
}

// Len returns (wallet count, social count).
func (s *Store) Len() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wallets), len(s.socials)
}

func (s *Store) persistLocked() error {
	file := fileFormat{
		Wallets: make([]string, 0, len(s.wallets)),
		Socials: make([]string, 0, len(s.socials)),
	}
	for w := range s.wallets {
		file.Wallets = append(file.Wallets, w)
	}
	for h := range s.socials {
		file.Socials = append(file.Socials, h)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("blacklist: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("blacklist: write %s: %w", s.path, err)
	}
	return nil
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

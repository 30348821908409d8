package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/sentinelops/sentinel-pipeline/internal/models"
	"github.com/sentinelops/sentinel-pipeline/internal/store"
)

const (
	entryKeyPrefix = "incident:"
	preferencesKey = "preferences"
	// DigestLength is the expected hex length of a content fingerprint.
	DigestLength = 64
)

// ContentCache maps content fingerprints of raw report text to previously
// produced incidents, so resubmitting the same report never costs a second
// round-trip to the inference backend. An injected store.Provider gives the
// mapping best-effort durability; the in-memory map remains authoritative.
type ContentCache struct {
	logger  *slog.Logger
	store   store.Provider
	mu      sync.RWMutex
	entries map[string]models.Incident

	prefMu sync.Mutex
	prefs  *models.Preferences
}

// NewContentCache constructs a cache backed by the given persistence hook.
func NewContentCache(logger *slog.Logger, provider store.Provider) *ContentCache {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = store.NoopProvider{}
	}
	return &ContentCache{
		logger:  logger,
		store:   provider,
		entries: make(map[string]models.Incident),
	}
}

// Fingerprint returns the 64-character hex SHA-256 digest of the trimmed
// report text. Identical text always yields an identical digest; leading and
// trailing whitespace is the only formatting the caller may vary.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the incident previously stored under digest. Misses fall
// through to the persistence hook once and hydrate the in-memory map on a hit
// there.
func (c *ContentCache) Lookup(digest string) (models.Incident, bool) {
	c.mu.RLock()
	incident, ok := c.entries[digest]
	c.mu.RUnlock()
	if ok {
		return incident, true
	}

	raw, err := c.store.Get(entryKeyPrefix + digest)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("cache store read failed", slog.String("digest", digest), slog.Any("error", err))
		}
		return models.Incident{}, false
	}
	if err := json.Unmarshal(raw, &incident); err != nil {
		c.logger.Warn("cache store entry corrupt", slog.String("digest", digest), slog.Any("error", err))
		return models.Incident{}, false
	}

	c.mu.Lock()
	c.entries[digest] = incident
	c.mu.Unlock()
	return incident, true
}

// Store upserts the incident under digest, last write wins, and writes
// through to the persistence hook on a best-effort basis.
func (c *ContentCache) Store(digest string, incident models.Incident) {
	c.mu.Lock()
	c.entries[digest] = incident
	c.mu.Unlock()

	raw, err := json.Marshal(incident)
	if err != nil {
		c.logger.Warn("cache entry marshal failed", slog.String("digest", digest), slog.Any("error", err))
		return
	}
	if err := c.store.Set(entryKeyPrefix+digest, raw); err != nil {
		c.logger.Warn("cache store write failed", slog.String("digest", digest), slog.Any("error", err))
	}
}

// Len reports the number of in-memory entries.
func (c *ContentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Preferences returns the saved configuration record, falling back to
// defaults when none has been persisted yet.
func (c *ContentCache) Preferences() models.Preferences {
	c.prefMu.Lock()
	defer c.prefMu.Unlock()

	if c.prefs != nil {
		return *c.prefs
	}

	prefs := models.DefaultPreferences()
	raw, err := c.store.Get(preferencesKey)
	if err == nil {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			c.logger.Warn("preferences record corrupt, using defaults", slog.Any("error", err))
			prefs = models.DefaultPreferences()
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		c.logger.Warn("preferences read failed", slog.Any("error", err))
	}

	c.prefs = &prefs
	return prefs
}

// SavePreferences replaces the configuration record and persists it.
func (c *ContentCache) SavePreferences(prefs models.Preferences) {
	c.prefMu.Lock()
	defer c.prefMu.Unlock()

	c.prefs = &prefs
	raw, err := json.Marshal(prefs)
	if err != nil {
		c.logger.Warn("preferences marshal failed", slog.Any("error", err))
		return
	}
	if err := c.store.Set(preferencesKey, raw); err != nil {
		c.logger.Warn("preferences write failed", slog.Any("error", err))
	}
}

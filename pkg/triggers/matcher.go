package triggers

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
)

const (
	// DefaultTTL bounds how long a loaded cache is served before reload.
	DefaultTTL = 60 * time.Second

	// DefaultMatchLimit is the number of matches returned when the caller
	// does not choose one.
	DefaultMatchLimit = 3
)

// State is the lifecycle state of the trigger cache.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateStale   State = "stale"
)

// Source provides the trigger projection of every stored memory.
type Source interface {
	TriggerRows(ctx context.Context) ([]memory.TriggerRow, error)
}

// MatcherConfig configures a Matcher.
type MatcherConfig struct {
	// TTL defaults to DefaultTTL.
	TTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Match is a memory whose trigger phrases appear in a prompt.
type Match struct {
	MemoryID         int64    `json:"memory_id"`
	SpecFolder       string   `json:"spec_folder"`
	FilePath         string   `json:"file_path"`
	Title            string   `json:"title"`
	MatchedPhrases   []string `json:"matched_phrases"`
	ImportanceWeight float64  `json:"importance_weight"`

	// TotalPhrases is the number of distinct phrases the memory has.
	TotalPhrases int `json:"total_phrases"`
}

// CacheStats describes the cache.
type CacheStats struct {
	// Size is the number of memories with at least one phrase.
	Size     int       `json:"size"`
	Phrases  int       `json:"phrases"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
	State    State     `json:"state"`

	// Loads counts successful loads since the matcher was created.
	Loads int `json:"loads"`
}

type entry struct {
	row     memory.TriggerRow
	phrases []string
}

type phraseRef struct {
	phrase string
	stems  []string
	entry  int
}

// Matcher serves trigger matches from an in-memory snapshot of the store.
// The hot path never touches the store while the snapshot is fresh.
type Matcher struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	// loadMu serializes loads so concurrent callers after a clear trigger
	// a single reload.
	loadMu sync.Mutex

	// mu guards the snapshot fields below.
	mu       sync.RWMutex
	entries  []entry
	phrases  []phraseRef
	loaded   bool
	loading  bool
	loadedAt time.Time
	loads    int

	// gen advances on every clear. A load that started under an older
	// generation is discarded.
	gen uint64
}

// NewMatcher creates an empty matcher over source.
func NewMatcher(source Source, c MatcherConfig, log *slog.Logger) *Matcher {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Matcher{
		source: source,
		ttl:    c.TTL,
		now:    c.Now,
		logger: logger.OrNop(log),
	}
}

// LoadCache rebuilds the snapshot from the source unless it is loaded and
// fresh, or force is set. A failed load keeps the previous snapshot; the
// error is logged and returned for observability only.
func (m *Matcher) LoadCache(ctx context.Context, force bool) error {
	if !force && m.fresh() {
		return nil
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	// another caller may have loaded while we waited
	if !force && m.fresh() {
		return nil
	}

	m.mu.Lock()
	m.loading = true
	gen := m.gen
	m.mu.Unlock()

	start := m.now()
	rows, err := m.source.TriggerRows(ctx)
	if err != nil {
		m.mu.Lock()
		m.loading = false
		kept := len(m.entries)
		m.mu.Unlock()

		m.logger.Warn("trigger cache load failed, serving previous cache",
			"error", err,
			"cached_memories", kept,
		)
		return err
	}

	entries, phrases := build(rows)

	m.mu.Lock()
	if m.gen != gen {
		m.loading = false
		m.mu.Unlock()
		m.logger.Debug("trigger cache cleared during load, discarding rows", "memories", len(entries))
		return nil
	}
	m.entries = entries
	m.phrases = phrases
	m.loaded = true
	m.loading = false
	m.loadedAt = m.now()
	m.loads++
	m.mu.Unlock()

	m.logger.Debug("trigger cache loaded",
		"memories", len(entries),
		"phrases", len(phrases),
		"elapsed", m.now().Sub(start),
	)
	return nil
}

func build(rows []memory.TriggerRow) ([]entry, []phraseRef) {
	entries := make([]entry, 0, len(rows))
	var phrases []phraseRef
	for _, row := range rows {
		seen := make(map[string]struct{}, len(row.TriggerPhrases))
		var ps []string
		for _, p := range row.TriggerPhrases {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			ps = append(ps, p)
		}
		if len(ps) == 0 {
			continue
		}

		idx := len(entries)
		entries = append(entries, entry{row: row, phrases: ps})
		for _, p := range ps {
			phrases = append(phrases, phraseRef{phrase: p, stems: phraseStems(p), entry: idx})
		}
	}
	return entries, phrases
}

// Match returns memories with at least one trigger phrase found in prompt.
// A phrase is found when it is a case-insensitive substring of the prompt,
// or when every content word of the phrase appears in the prompt up to its
// suffix ("configure the database" finds "database configuration").
// Results are ranked by number of matched phrases, then importance, then id,
// and truncated to limit. A limit <= 0 or an empty prompt yields no matches.
func (m *Matcher) Match(ctx context.Context, prompt string, limit int) []Match {
	if limit <= 0 || strings.TrimSpace(prompt) == "" {
		return []Match{}
	}

	_ = m.LoadCache(ctx, false)

	lower := strings.ToLower(prompt)
	words := promptStems(lower)

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make(map[int][]string)
	for _, ref := range m.phrases {
		if strings.Contains(lower, ref.phrase) || containsAll(words, ref.stems) {
			hits[ref.entry] = append(hits[ref.entry], ref.phrase)
		}
	}

	out := make([]Match, 0, len(hits))
	for idx, matched := range hits {
		row := m.entries[idx].row
		out = append(out, Match{
			MemoryID:         row.ID,
			SpecFolder:       row.SpecFolder,
			FilePath:         row.FilePath,
			Title:            row.Title,
			MatchedPhrases:   matched,
			ImportanceWeight: row.ImportanceWeight,
			TotalPhrases:     len(m.entries[idx].phrases),
		})
	}

	slices.SortFunc(out, func(a, b Match) int {
		return cmp.Or(
			cmp.Compare(len(b.MatchedPhrases), len(a.MatchedPhrases)),
			cmp.Compare(b.ImportanceWeight, a.ImportanceWeight),
			cmp.Compare(a.MemoryID, b.MemoryID),
		)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ClearCache drops the snapshot. The next match reloads it, and a load
// already in flight is not published.
func (m *Matcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.entries = nil
	m.phrases = nil
	m.loaded = false
	m.loadedAt = time.Time{}
}

// Stats describes the current snapshot.
func (m *Matcher) Stats() CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CacheStats{
		Size:     len(m.entries),
		Phrases:  len(m.phrases),
		LoadedAt: m.loadedAt,
		State:    m.stateLocked(),
		Loads:    m.loads,
	}
}

func (m *Matcher) fresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked() == StateLoaded
}

func (m *Matcher) stateLocked() State {
	switch {
	case m.loading:
		return StateLoading
	case !m.loaded:
		return StateEmpty
	case m.now().Sub(m.loadedAt) > m.ttl:
		return StateStale
	default:
		return StateLoaded
	}
}

package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// ErrProfileNotFound is returned by profile sources for unknown users.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileSource resolves user profiles.
type ProfileSource interface {
	FetchProfile(ctx context.Context, userID string) (Profile, error)
}

// StaticProfileSource is an in-memory ProfileSource.
type StaticProfileSource struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewStaticProfileSource creates a source pre-filled with profiles.
func NewStaticProfileSource(profiles ...Profile) *StaticProfileSource {
	s := &StaticProfileSource{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	return s
}

// Put stores or replaces a profile.
func (s *StaticProfileSource) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func (s *StaticProfileSource) FetchProfile(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("user %q: %w", userID, ErrProfileNotFound)
	}
	return p, nil
}

// Config controls source access.
type Config struct {
	// FetchTimeout bounds every call to an external source.
	FetchTimeout time.Duration

	// CacheSize is the number of sector contexts kept in memory.
	CacheSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 2 * time.Second,
		CacheSize:    64,
	}
}

// Context is the generation context derived for one user and module.
type Context struct {
	Level    assessment.Difficulty `json:"level"`
	Sector   SectorContext         `json:"sector"`
	Workshop WorkshopSpecifics     `json:"workshop"`
}

// Adapter derives user levels and merges sector context into requests.
// Source failures degrade to empty data and are never fatal.
type Adapter struct {
	profiles ProfileSource
	sectors  SectorSource
	cfg      Config

	cache *lru.Cache[string, SectorContext]
	group singleflight.Group
}

// NewAdapter creates an Adapter. A nil profile source disables profile lookups.
func NewAdapter(profiles ProfileSource, sectors SectorSource, cfg Config) (*Adapter, error) {
	if sectors == nil {
		sectors = NewStaticSectorSource()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	cache, err := lru.New[string, SectorContext](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create sector cache: %w", err)
	}
	return &Adapter{
		profiles: profiles,
		sectors:  sectors,
		cfg:      cfg,
		cache:    cache,
	}, nil
}

// ResolveProfile fetches a user's profile. On failure a bare profile carrying
// only the user id is returned together with the error.
func (a *Adapter) ResolveProfile(ctx context.Context, userID string) (Profile, error) {
	if a.profiles == nil {
		return Profile{UserID: userID}, fmt.Errorf("user %q: %w", userID, ErrProfileNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	p, err := a.profiles.FetchProfile(ctx, userID)
	if err != nil {
		return Profile{UserID: userID}, err
	}
	return p, nil
}

// Sector returns the context of a sector, using the cache when possible.
// Concurrent misses for the same sector share a single source call.
func (a *Adapter) Sector(ctx context.Context, sector string) SectorContext {
	name := CanonicalSector(sector)
	if name == "" {
		return SectorContext{}
	}
	if c, ok := a.cache.Get(name); ok {
		return c
	}

	v, err, _ := a.group.Do(name, func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
		c, err := a.sectors.FetchSectorContext(fctx, name)
		if err != nil {
			return nil, err
		}
		a.cache.Add(name, c)
		return c, nil
	})
	if err != nil {
		slog.Warn("sector context unavailable", "sector", name, "error", err)
		return SectorContext{Sector: name}
	}
	return v.(SectorContext)
}

// Adapt builds the generation context for a profile and module.
func (a *Adapter) Adapt(ctx context.Context, p Profile, moduleID string) Context {
	w, _ := Workshop(moduleID)
	return Context{
		Level:    LevelFor(p),
		Sector:   a.Sector(ctx, p.Sector),
		Workshop: w,
	}
}

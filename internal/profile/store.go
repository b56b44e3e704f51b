package profile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scheerer/crystal-lights/internal/logging"
)

var logger = logging.New("profile")

var ErrUnknownBot = errors.New("unknown bot")

// configFiles are tried in order inside a bot directory. yaml.v3 reads JSON
// as well, so one decoder covers both.
var configFiles = []string{"config.json", "config.yaml", "config.yml"}

var lightConfigKeys = []string{"light_config", "lightConfig"}

// Store resolves bot profiles from <dir>/<bot>/config.{json,yaml}. A profile
// is read once and cached until Invalidate is called for that bot.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*Profile
}

func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string]*Profile),
	}
}

// Profile returns the bot's profile. Bots without a directory are not
// resolvable. A directory without a usable light config yields Default().
func (s *Store) Profile(bot string) (*Profile, error) {
	if !validBotName(bot) {
		return nil, errors.Wrapf(ErrUnknownBot, "bot %q", bot)
	}

	s.mu.RLock()
	p, ok := s.cache[bot]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := s.load(bot)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[bot] = p
	s.mu.Unlock()
	return p, nil
}

// Invalidate drops the cached profile so the next lookup reads the file again.
func (s *Store) Invalidate(bot string) {
	s.mu.Lock()
	delete(s.cache, bot)
	s.mu.Unlock()
}

// InvalidateAll drops every cached profile.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]*Profile)
	s.mu.Unlock()
}

// Bots lists the bot directories, sorted.
func (s *Store) Bots() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading bot directory %s", s.dir)
	}
	bots := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			bots = append(bots, e.Name())
		}
	}
	sort.Strings(bots)
	return bots, nil
}

func (s *Store) load(bot string) (*Profile, error) {
	botDir := filepath.Join(s.dir, bot)
	info, err := os.Stat(botDir)
	if err != nil || !info.IsDir() {
		return nil, errors.Wrapf(ErrUnknownBot, "bot %q", bot)
	}

	log := logger.With(zap.String("bot", bot))

	for _, name := range configFiles {
		path := filepath.Join(botDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.With(zap.String("path", path), zap.Error(err)).Error("Failed to read bot config, using default light profile")
			return Default(), nil
		}

		raw, err := Parse(data)
		if err != nil {
			log.With(zap.String("path", path), zap.Error(err)).Error("Failed to parse bot config, using default light profile")
			return Default(), nil
		}
		if raw == nil {
			log.With(zap.String("path", path)).Warn("No light_config in bot config, using default light profile")
			return Default(), nil
		}

		p, ignored := Normalize(raw)
		if len(ignored) > 0 {
			log.With(zap.Strings("fields", ignored)).Warn("Ignoring malformed light_config fields")
		}
		log.With(zap.String("path", path), zap.Any("profile", p)).Info("Loaded light profile")
		return p, nil
	}

	log.Warn("Bot config not found, using default light profile")
	return Default(), nil
}

// Parse decodes a bot config document and returns its light_config mapping,
// or nil when the document has none.
func Parse(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding bot config")
	}
	for _, key := range lightConfigKeys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		m, ok := asMap(v)
		if !ok {
			return nil, errors.Errorf("%s is not a mapping", key)
		}
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	}
	return nil, nil
}

func validBotName(bot string) bool {
	if bot == "" || bot == "." || bot == ".." {
		return false
	}
	return !strings.ContainsAny(bot, `/\`)
}

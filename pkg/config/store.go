package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// Store holds explicit values and defaults, both scoped by section.
type Store struct {
	mu       sync.RWMutex
	values   map[string]map[string]string
	defaults map[string]map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		values:   make(map[string]map[string]string),
		defaults: make(map[string]map[string]string),
	}
}

// Load reads an INI file into a new store.
func Load(path string) (*Store, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load configuration %s", path)
	}

	return fromINI(file), nil
}

// LoadBytes reads INI content into a new store.
func LoadBytes(data []byte) (*Store, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration")
	}

	return fromINI(file), nil
}

func fromINI(file *ini.File) *Store {
	s := New()
	for _, sec := range file.Sections() {
		for _, key := range sec.Keys() {
			s.Set(sec.Name(), key.Name(), key.String())
		}
	}

	return s
}

func normKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func put(m map[string]map[string]string, section, key, value string) {
	sec, ok := m[section]
	if !ok {
		sec = make(map[string]string)
		m[section] = sec
	}
	sec[normKey(key)] = value
}

// Set registers an explicit value.
func (s *Store) Set(section, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.values, section, key, value)
}

// SetDefault registers the fallback used when no explicit value exists.
func (s *Store) SetDefault(section, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.defaults, section, key, value)
}

func (s *Store) lookup(section, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k := normKey(key)
	if v, ok := s.values[section][k]; ok {
		return v, true
	}
	v, ok := s.defaults[section][k]

	return v, ok
}

// Has reports whether Get would succeed.
func (s *Store) Has(section, key string) bool {
	_, ok := s.lookup(section, key)
	return ok
}

// Get returns the explicit value, else the default, else a MissingConfigurationError.
func (s *Store) Get(section, key string) (string, error) {
	v, ok := s.lookup(section, key)
	if !ok {
		return "", &MissingConfigurationError{Section: section, Key: normKey(key)}
	}

	return v, nil
}

// GetOr returns fallback when the setting is absent.
func (s *Store) GetOr(section, key, fallback string) string {
	if v, ok := s.lookup(section, key); ok {
		return v
	}

	return fallback
}

// Duration parses the setting with time.ParseDuration.
func (s *Store) Duration(section, key string) (time.Duration, error) {
	v, err := s.Get(section, key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(err, "parse [%s] %s", section, normKey(key))
	}

	return d, nil
}

// Int parses the setting as a base 10 integer.
func (s *Store) Int(section, key string) (int, error) {
	v, err := s.Get(section, key)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(err, "parse [%s] %s", section, normKey(key))
	}

	return i, nil
}

// Bool parses the setting with strconv.ParseBool.
func (s *Store) Bool(section, key string) (bool, error) {
	v, err := s.Get(section, key)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, errors.Wrapf(err, "parse [%s] %s", section, normKey(key))
	}

	return b, nil
}

func envSection(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", "_"))
}

// Sections lists the sections holding explicit values.
func (s *Store) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.values))
	for name := range s.values {
		out = append(out, name)
	}

	return out
}

// ApplyEnv turns PREFIX_<SECTION>__<KEY> environment variables into explicit values.
// Section names are matched against known sections ignoring case, with '_' standing for
// '-'. Unknown sections are created lower-cased.
func (s *Store) ApplyEnv(prefix string) int {
	return s.applyEnv(prefix, os.Environ())
}

func (s *Store) applyEnv(prefix string, environ []string) int {
	known := make(map[string]string)
	for _, name := range s.Sections() {
		known[envSection(name)] = name
	}

	applied := 0
	head := prefix + "_"
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, head) {
			continue
		}
		section, key, ok := strings.Cut(strings.TrimPrefix(name, head), "__")
		if !ok || section == "" || key == "" {
			continue
		}
		if real, found := known[envSection(section)]; found {
			section = real
		} else {
			section = strings.ToLower(section)
		}
		s.Set(section, key, value)
		applied++
	}

	return applied
}

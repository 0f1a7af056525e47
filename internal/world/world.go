// Package world loads the story's character roster and setting.
//
// Both files are optional; a missing file yields an empty roster or setting.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
package world

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"fateweaver/internal/model"
)

// MaxBriefs caps how many character briefs go into a prompt.
const MaxBriefs = 60

// ErrUnknownCharacter is returned when a name or index matches no character.
var ErrUnknownCharacter = errors.New("unknown character")

// Character is one member of the cast.
type Character struct {
	Name        string `json:"name" yaml:"name"`
	Personality string `json:"personality,omitempty" yaml:"personality,omitempty"`
	Background  string `json:"background,omitempty" yaml:"background,omitempty"`
	VoiceID     string `json:"voiceId,omitempty" yaml:"voiceId,omitempty"`
}

// Location is a place in the setting. Sublocations nest one level.
type Location struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name,omitempty" yaml:"name,omitempty"`
	Sublocations []Location `json:"sublocations,omitempty" yaml:"sublocations,omitempty"`
}

// Setting describes where the story happens.
type Setting struct {
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Locations []Location `json:"locations,omitempty" yaml:"locations,omitempty"`
}

// World is the loaded cast and setting. It is safe for concurrent use.
type World struct {
	mu             sync.RWMutex
	charactersPath string
	characters     []Character
	// rawCharacters keeps every key of the roster file so Save only touches voiceId.
	rawCharacters []map[string]any
	setting       Setting
}

// New builds a World from in-memory data. Save is a no-op without a characters path.
func New(characters []Character, setting Setting) *World {
	return &World{characters: characters, setting: setting}
}

// Load reads the characters and setting files.
func Load(charactersPath, settingPath string) (*World, error) {
	w := &World{charactersPath: charactersPath}
	if err := readFile(charactersPath, &w.characters); err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	if err := readFile(charactersPath, &w.rawCharacters); err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	if err := readFile(settingPath, &w.setting); err != nil {
		return nil, fmt.Errorf("load setting: %w", err)
	}
	return w, nil
}

func readFile(path string, v any) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if isYAML(path) {
		return yaml.Unmarshal(b, v)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Characters returns a copy of the roster.
func (w *World) Characters() []Character {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Character, len(w.characters))
	copy(out, w.characters)
	return out
}

// Setting returns the setting.
func (w *World) Setting() Setting {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.setting
}

// Names lists character names in roster order, skipping unnamed entries.
func (w *World) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.characters))
	for _, c := range w.characters {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// Speakers is the sorted, de-duplicated set of names plus the narrator.
func (w *World) Speakers() []string {
	seen := map[string]bool{model.SenderNarrator: true}
	out := []string{model.SenderNarrator}
	for _, n := range w.Names() {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// LocationIDs lists each location id followed by its sublocation ids.
func (w *World) LocationIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var ids []string
	for _, loc := range w.setting.Locations {
		if loc.ID != "" {
			ids = append(ids, loc.ID)
		}
		for _, sub := range loc.Sublocations {
			if sub.ID != "" {
				ids = append(ids, sub.ID)
			}
		}
	}
	return ids
}

// HasLocation reports whether id is a known location or sublocation.
func (w *World) HasLocation(id string) bool {
	for _, known := range w.LocationIDs() {
		if known == id {
			return true
		}
	}
	return false
}

// Briefs renders at most limit "name: personality | background" lines.
func (w *World) Briefs(limit int) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.characters))
	for _, c := range w.characters {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, fmt.Sprintf("%s: %s | %s", c.Name, c.Personality, c.Background))
	}
	return out
}

// Lookup finds a character by exact name.
func (w *World) Lookup(name string) (Character, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.characters {
		if c.Name == name {
			return c, true
		}
	}
	return Character{}, false
}

// IsSpeaker reports whether name may speak a line: a known character or the narrator.
func (w *World) IsSpeaker(name string) bool {
	if name == model.SenderNarrator {
		return true
	}
	_, ok := w.Lookup(name)
	return ok
}

// ResolveTarget accepts a character name or a decimal index into the roster.
func (w *World) ResolveTarget(target string) (Character, error) {
	if c, ok := w.Lookup(target); ok {
		return c, nil
	}
	if i, err := strconv.Atoi(target); err == nil {
		w.mu.RLock()
		defer w.mu.RUnlock()
		if i >= 0 && i < len(w.characters) {
			return w.characters[i], nil
		}
		return Character{}, fmt.Errorf("%w: index %d out of range", ErrUnknownCharacter, i)
	}
	return Character{}, fmt.Errorf("%w: %q", ErrUnknownCharacter, target)
}

// VoiceFor returns the character's assigned voice, or "".
func (w *World) VoiceFor(name string) string {
	c, _ := w.Lookup(name)
	return c.VoiceID
}

// SetVoice records a voice for the named character and persists the roster.
func (w *World) SetVoice(name, voiceID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	found := false
	for i := range w.characters {
		if w.characters[i].Name == name {
			w.characters[i].VoiceID = voiceID
			if i < len(w.rawCharacters) && w.rawCharacters[i] != nil {
				w.rawCharacters[i]["voiceId"] = voiceID
			}
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownCharacter, name)
	}
	return w.save()
}

// Save writes the roster back to its file.
func (w *World) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.save()
}

// save requires w.mu held for writing.
func (w *World) save() error {
	if w.charactersPath == "" {
		return nil
	}
	var roster any = w.characters
	if len(w.rawCharacters) == len(w.characters) {
		roster = w.rawCharacters
	}

	var (
		b   []byte
		err error
	)
	if isYAML(w.charactersPath) {
		b, err = yaml.Marshal(roster)
	} else {
		b, err = json.MarshalIndent(roster, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode characters: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.charactersPath), filepath.Base(w.charactersPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write characters: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("write characters: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write characters: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write characters: %w", err)
	}
	return os.Rename(tmp.Name(), w.charactersPath)
}

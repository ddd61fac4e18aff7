package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"klipper-delta-filter/pkg/errors"
)

// Config holds the sections of a configuration file and tracks which
// sections were accessed.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string // Section order of first appearance

	accessedSections map[string]struct{}
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections:         make(map[string]*Section),
		accessedSections: make(map[string]struct{}),
	}
}

// Load reads a configuration file. [include path] directives are resolved
// relative to the including file and may use glob patterns.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.parseFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a configuration from a string. Includes are not allowed.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(strings.NewReader(data), "<string>", "", nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigOption, "invalid config path "+path)
	}
	if visited[abs] {
		return errors.ConfigOptionError(path, "recursive include")
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return errors.IOError(err, "open config "+path)
	}
	defer f.Close()

	return c.parse(f, path, filepath.Dir(abs), visited)
}

// parse reads sections from r. dir and visited are nil/empty when includes
// are not allowed.
func (c *Config) parse(r io.Reader, name, dir string, visited map[string]bool) error {
	var section string
	var options map[string]string
	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			section, options = "", nil

			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return ErrSyntax(name, lineNum, "empty section header")
			}
			if strings.HasPrefix(header, "include ") {
				if visited == nil {
					return ErrSyntax(name, lineNum, "include not allowed here")
				}
				if err := c.include(strings.TrimSpace(header[8:]), name, lineNum, dir, visited); err != nil {
					return err
				}
				continue
			}
			section = header
			options = make(map[string]string)
			continue
		}

		// Options before the first section are ignored
		if section == "" {
			continue
		}

		key, value, ok := splitOption(line)
		if !ok {
			return ErrSyntax(name, lineNum, "expected 'option: value' in ["+section+"]")
		}
		options[key] = value
	}
	flush()

	if err := scanner.Err(); err != nil {
		return errors.IOError(err, "read config "+name)
	}
	return nil
}

func (c *Config) include(pattern, name string, lineNum int, dir string, visited map[string]bool) error {
	if pattern == "" {
		return ErrSyntax(name, lineNum, "empty include")
	}
	glob := filepath.Join(dir, pattern)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return ErrSyntax(name, lineNum, "invalid include pattern "+pattern)
	}
	if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
		return ErrSyntax(name, lineNum, "include file does not exist: "+glob)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if err := c.parseFile(m, visited); err != nil {
			return err
		}
	}
	return nil
}

// stripComment trims line and removes '#' and ';' comments. Lines in a
// SAVE_CONFIG block ("#*# ") are read as regular lines, except the
// "#*# <--- SAVE_CONFIG --->" marker.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#*#") {
		saved := strings.TrimSpace(line[3:])
		if strings.HasPrefix(saved, "<") {
			// Block marker
			return ""
		}
		return saved
	}
	if idx := strings.IndexAny(line, "#;"); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	return line
}

// splitOption splits "key: value" or "key = value", whichever separator comes first.
func splitOption(line string) (key, value string, ok bool) {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

// addSection adds a section, merging options into an existing one.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or an error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	if sec := c.GetSectionOptional(name); sec != nil {
		return sec, nil
	}
	return nil, ErrMissingSection(name)
}

// GetSectionOptional returns a Section if it exists, or nil if not.
func (c *Config) GetSectionOptional(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec, ok := c.sections[name]
	if ok {
		c.accessedSections[name] = struct{}{}
	}
	return sec
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// GetUnusedSections returns the sections that were never accessed, sorted.
func (c *Config) GetUnusedSections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for name := range c.sections {
		if _, ok := c.accessedSections[name]; !ok {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

// GetUnusedOptions returns "section.option" for every option never read in
// an accessed section, sorted.
func (c *Config) GetUnusedOptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for name := range c.accessedSections {
		for _, opt := range c.sections[name].GetUnusedOptions() {
			result = append(result, optionName(name, opt))
		}
	}
	sort.Strings(result)
	return result
}

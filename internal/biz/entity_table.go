package biz

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supplier exposure tiers
const (
	ExposureCritical = "Critical"
	ExposureHigh     = "High"
	ExposureMedium   = "Medium"
)

// EntityProfile is the static metadata of a watched supplier.
type EntityProfile struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Segment  string `yaml:"segment"`
	Exposure string `yaml:"exposure"`
	Location string `yaml:"location"`
	Ticker   string `yaml:"ticker"`
}

// PeerProfile is the static metadata of a tracked competitor.
type PeerProfile struct {
	Name        string `yaml:"name"`
	FullName    string `yaml:"full_name"`
	Type        string `yaml:"type"`
	Ticker      string `yaml:"ticker"`
	Region      string `yaml:"region"`
	USListed    bool   `yaml:"us_listed"`
	DefaultText string `yaml:"default_text"`
}

type entityFile struct {
	Defaults  EntityProfile     `yaml:"defaults"`
	Segments  map[string]string `yaml:"segments"`
	Regions   []string          `yaml:"regions"`
	Peers     []PeerProfile     `yaml:"peers"`
	Suppliers []EntityProfile   `yaml:"suppliers"`
}

// EntityTable maps entity names to their static metadata. Unknown names
// resolve to the documented default profile: exposure Medium, segment
// Unclassified, location Unknown.
type EntityTable struct {
	defaults  EntityProfile
	segments  map[string]string
	regions   []string
	peers     []PeerProfile
	suppliers []EntityProfile
	index     map[string]int
	peerIndex map[string]int
}

// LoadEntityTable reads and validates the entity table file.
func LoadEntityTable(path string) (*EntityTable, error) {
	if path == "" {
		return nil, fmt.Errorf("entity table path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity table: %w", err)
	}
	table, err := ParseEntityTable(raw)
	if err != nil {
		return nil, fmt.Errorf("entity table %s: %w", path, err)
	}
	return table, nil
}

// ParseEntityTable decodes and validates an entity table document.
func ParseEntityTable(raw []byte) (*EntityTable, error) {
	var f entityFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse entity table: %w", err)
	}

	t := &EntityTable{
		defaults:  f.Defaults,
		segments:  f.Segments,
		regions:   f.Regions,
		peers:     f.Peers,
		index:     make(map[string]int, len(f.Suppliers)),
		peerIndex: make(map[string]int, len(f.Peers)),
	}
	if t.defaults.Exposure == "" {
		t.defaults.Exposure = ExposureMedium
	}
	if t.defaults.Segment == "" {
		t.defaults.Segment = "Unclassified"
	}
	if t.defaults.Location == "" {
		t.defaults.Location = "Unknown"
	}
	if t.segments == nil {
		t.segments = map[string]string{}
	}

	var invalid []string
	if !validExposure(t.defaults.Exposure) {
		invalid = append(invalid, fmt.Sprintf("defaults.exposure=%q", t.defaults.Exposure))
	}

	for i, s := range f.Suppliers {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if key == "" {
			invalid = append(invalid, fmt.Sprintf("suppliers[%d].name (empty)", i))
			continue
		}
		if _, dup := t.index[key]; dup {
			invalid = append(invalid, fmt.Sprintf("suppliers[%d].name (duplicate %q)", i, s.Name))
			continue
		}
		if s.Exposure != "" && !validExposure(s.Exposure) {
			invalid = append(invalid, fmt.Sprintf("suppliers[%d].exposure=%q", i, s.Exposure))
			continue
		}
		t.index[key] = len(t.suppliers)
		t.suppliers = append(t.suppliers, t.resolve(s))
	}

	for i, p := range f.Peers {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if key == "" {
			invalid = append(invalid, fmt.Sprintf("peers[%d].name (empty)", i))
			continue
		}
		if _, dup := t.peerIndex[key]; dup {
			invalid = append(invalid, fmt.Sprintf("peers[%d].name (duplicate %q)", i, p.Name))
			continue
		}
		t.peerIndex[key] = i
	}

	seen := make(map[string]struct{}, len(f.Regions))
	for i, r := range f.Regions {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" {
			invalid = append(invalid, fmt.Sprintf("regions[%d] (empty)", i))
			continue
		}
		if _, dup := seen[key]; dup {
			invalid = append(invalid, fmt.Sprintf("regions[%d] (duplicate %q)", i, r))
		}
		seen[key] = struct{}{}
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, fmt.Errorf("invalid entity table fields: %s", strings.Join(invalid, ", "))
	}
	return t, nil
}

func validExposure(e string) bool {
	return e == ExposureCritical || e == ExposureHigh || e == ExposureMedium
}

// resolve fills empty fields from the defaults and the segment map.
func (t *EntityTable) resolve(p EntityProfile) EntityProfile {
	if p.Exposure == "" {
		p.Exposure = t.defaults.Exposure
	}
	if p.Segment == "" {
		if seg, ok := t.segments[p.Category]; ok {
			p.Segment = seg
		} else {
			p.Segment = t.defaults.Segment
		}
	}
	if p.Location == "" {
		p.Location = t.defaults.Location
	}
	if p.Ticker == "" {
		p.Ticker = t.defaults.Ticker
	}
	return p
}

// Lookup returns the supplier profile for name (case-insensitive). For an
// unknown name it returns the default profile carrying name, and false.
func (t *EntityTable) Lookup(name string) (EntityProfile, bool) {
	if i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t.suppliers[i], true
	}
	p := t.defaults
	p.Name = name
	return p, false
}

// Peer returns the peer profile for name (case-insensitive).
func (t *EntityTable) Peer(name string) (PeerProfile, bool) {
	if i, ok := t.peerIndex[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t.peers[i], true
	}
	return PeerProfile{Name: name, FullName: name, Type: "Unknown"}, false
}

// Suppliers returns the watchlist in file order.
func (t *EntityTable) Suppliers() []EntityProfile {
	return append([]EntityProfile(nil), t.suppliers...)
}

// Peers returns the tracked peers in file order.
func (t *EntityTable) Peers() []PeerProfile {
	return append([]PeerProfile(nil), t.peers...)
}

// Regions returns the macro regions in file order.
func (t *EntityTable) Regions() []string {
	return append([]string(nil), t.regions...)
}

// Defaults returns the profile used for unknown entities.
func (t *EntityTable) Defaults() EntityProfile {
	return t.defaults
}

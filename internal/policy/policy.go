// v0
// internal/policy/policy.go
package policy

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cyclesense/analysis/internal/risk"
	"cyclesense/analysis/internal/similarity"
)

// ErrUnknownProfile is returned when a requested risk profile does not exist.
var ErrUnknownProfile = errors.New("unknown risk profile")

// Policy groups every tunable weight and threshold of the scoring core.
type Policy struct {
	DefaultProfile string
	Profiles       map[string]risk.Profile
	Comparator     similarity.Levels
}

type document struct {
	DefaultProfile string               `yaml:"defaultProfile"`
	Profiles       map[string]yaml.Node `yaml:"profiles"`
	Comparator     *yaml.Node           `yaml:"comparator"`
}

// Default returns the built-in profiles, "full" as default and the stock
// comparator levels.
func Default() *Policy {
	return &Policy{
		DefaultProfile: risk.ProfileFull,
		Profiles:       risk.BuiltinProfiles(),
		Comparator:     similarity.DefaultLevels(),
	}
}

// Load reads a YAML policy from path. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML policy. Profiles that share a built-in name, and the
// comparator levels, override only the fields they set; new profile names
// start from the zero profile.
func Parse(data []byte) (*Policy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	p := Default()
	if doc.DefaultProfile != "" {
		p.DefaultProfile = strings.ToLower(doc.DefaultProfile)
	}
	if doc.Comparator != nil {
		if err := doc.Comparator.Decode(&p.Comparator); err != nil {
			return nil, fmt.Errorf("comparator: %w", err)
		}
	}
	for raw, node := range doc.Profiles {
		name := strings.ToLower(strings.TrimSpace(raw))
		prof := p.Profiles[name]
		if err := node.Decode(&prof); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		prof.Name = name
		p.Profiles[name] = prof
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks every profile, the default profile and the comparator levels.
func (p *Policy) Validate() error {
	for _, name := range p.Names() {
		if err := p.Profiles[name].Validate(); err != nil {
			return err
		}
	}
	if _, ok := p.Profiles[p.DefaultProfile]; !ok {
		return fmt.Errorf("%w: default %q", ErrUnknownProfile, p.DefaultProfile)
	}
	if err := p.Comparator.Validate(); err != nil {
		return err
	}
	return nil
}

// Profile resolves name, falling back to the default profile when empty.
func (p *Policy) Profile(name string) (risk.Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = p.DefaultProfile
	}
	prof, ok := p.Profiles[name]
	if !ok {
		return risk.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return prof, nil
}

// Names lists the profile names in sorted order.
func (p *Policy) Names() []string {
	names := make([]string, 0, len(p.Profiles))
	for name := range p.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithDefault returns a copy of p whose default profile is name. An empty
// name leaves the default unchanged.
func (p *Policy) WithDefault(name string) (*Policy, error) {
	if strings.TrimSpace(name) == "" {
		return p, nil
	}
	prof, err := p.Profile(name)
	if err != nil {
		return nil, err
	}
	cp := *p
	cp.DefaultProfile = prof.Name
	return &cp, nil
}

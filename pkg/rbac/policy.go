package rbac

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the registry of protected role keys, reserved permission keys and
// coarse override keys. A Policy is never mutated after construction.
type Policy struct {
	protectedRoles  map[string]struct{}
	systemKeys      map[string]struct{}
	systemPrefixes  []string
	overrideDomains map[string][]string
}

// PolicyFile is the YAML shape accepted by LoadPolicy
type PolicyFile struct {
	ProtectedRoleKeys        []string            `yaml:"protected_role_keys"`
	SystemPermissionKeys     []string            `yaml:"system_permission_keys"`
	SystemPermissionPrefixes []string            `yaml:"system_permission_prefixes"`
	Overrides                map[string][]string `yaml:"overrides"`
}

// DefaultPolicyFile returns the built-in policy definition
func DefaultPolicyFile() PolicyFile {
	return PolicyFile{
		ProtectedRoleKeys: []string{RoleCentralSuperadmin, RoleTenantSuperadmin},
		SystemPermissionKeys: []string{
			PermManageSecurity,
			PermManageRoles,
			PermManageUsers,
			PermManageTenants,
			PermAccessAdminPanel,
		},
		SystemPermissionPrefixes: []string{"system.", "roles.", "permissions.", "users."},
		Overrides: map[string][]string{
			PermManageRoles:    {"roles"},
			PermManageUsers:    {"users"},
			PermManageSecurity: {"roles", "permissions", "users"},
		},
	}
}

// NewPolicy builds a Policy from its file form
func NewPolicy(f PolicyFile) (*Policy, error) {
	p := &Policy{
		protectedRoles:  make(map[string]struct{}, len(f.ProtectedRoleKeys)),
		systemKeys:      make(map[string]struct{}, len(f.SystemPermissionKeys)),
		overrideDomains: make(map[string][]string, len(f.Overrides)),
	}

	for _, k := range f.ProtectedRoleKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("empty protected role key")
		}
		p.protectedRoles[k] = struct{}{}
	}
	for _, k := range f.SystemPermissionKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("empty system permission key")
		}
		p.systemKeys[k] = struct{}{}
	}
	for _, prefix := range f.SystemPermissionPrefixes {
		if prefix == "" {
			return nil, fmt.Errorf("empty system permission prefix")
		}
		p.systemPrefixes = append(p.systemPrefixes, prefix)
	}
	for key, domains := range f.Overrides {
		p.overrideDomains[key] = append([]string(nil), domains...)
	}

	return p, nil
}

// DefaultPolicy returns the built-in policy
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultPolicyFile())
	if err != nil {
		panic(err)
	}
	return p
}

// LoadPolicy reads a policy from a YAML file. Sections missing from the file
// keep their built-in values.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a YAML policy document
func ParsePolicy(data []byte) (*Policy, error) {
	f := DefaultPolicyFile()
	var parsed PolicyFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	if parsed.ProtectedRoleKeys != nil {
		f.ProtectedRoleKeys = parsed.ProtectedRoleKeys
	}
	if parsed.SystemPermissionKeys != nil {
		f.SystemPermissionKeys = parsed.SystemPermissionKeys
	}
	if parsed.SystemPermissionPrefixes != nil {
		f.SystemPermissionPrefixes = parsed.SystemPermissionPrefixes
	}
	if parsed.Overrides != nil {
		f.Overrides = parsed.Overrides
	}

	return NewPolicy(f)
}

// IsProtectedRoleKey reports whether key names a built-in superadmin role
func (p *Policy) IsProtectedRoleKey(key string) bool {
	_, ok := p.protectedRoles[key]
	return ok
}

// IsSystemPermissionKey reports whether key is reserved, exactly or by prefix
func (p *Policy) IsSystemPermissionKey(key string) bool {
	if _, ok := p.systemKeys[key]; ok {
		return true
	}
	for _, prefix := range p.systemPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// ProtectedRoleKeys returns the protected keys in sorted order
func (p *Policy) ProtectedRoleKeys() []string {
	return sortedKeys(p.protectedRoles)
}

// SystemPermissionKeys returns the exact reserved keys in sorted order
func (p *Policy) SystemPermissionKeys() []string {
	return sortedKeys(p.systemKeys)
}

// HasAny reports whether set grants at least one of the required keys, either
// directly or through an override key covering the required key's domain.
func (p *Policy) HasAny(set PermissionSet, required ...string) bool {
	for _, req := range required {
		if set.Has(req) {
			return true
		}
		domain, _, found := strings.Cut(req, ".")
		if !found {
			continue
		}
		for override, domains := range p.overrideDomains {
			if !set.Has(override) {
				continue
			}
			for _, d := range domains {
				if d == domain {
					return true
				}
			}
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PermissionSet is a resolved set of permission keys
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from keys
func NewPermissionSet(keys ...string) PermissionSet {
	s := make(PermissionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key is in the set
func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the keys in sorted order
func (s PermissionSet) Keys() []string {
	return sortedKeys(s)
}

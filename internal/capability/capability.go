package capability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Capability is one entry of the closed permission vocabulary.
type Capability uint8

const (
	ServerView Capability = iota
	PowerOn
	PowerOff
	PowerRestart
	PowerKill
	ConsoleRead
	StatsView
	SettingsJava
	SettingsStartup
	FilesList
	FilesRead
	FilesWrite
	FilesRename
	FilesCopy
	FilesBackups
	FilesSFTP
	PluginsInstall
	SubusersView
	SubusersManage
	ProfileView
	ProfileEdit

	numCapabilities
)

const (
	wildcardSuffix = ".*"
	fullGrant      = "*"
)

var names = [numCapabilities]string{
	ServerView:      "server.view",
	PowerOn:         "server.power.on",
	PowerOff:        "server.power.off",
	PowerRestart:    "server.power.restart",
	PowerKill:       "server.power.kill",
	ConsoleRead:     "server.console.read",
	StatsView:       "server.stats.view",
	SettingsJava:    "server.settings.java",
	SettingsStartup: "server.settings.startup",
	FilesList:       "server.files.list",
	FilesRead:       "server.files.read",
	FilesWrite:      "server.files.write",
	FilesRename:     "server.files.rename",
	FilesCopy:       "server.files.copy",
	FilesBackups:    "server.files.backups",
	FilesSFTP:       "server.files.sftp",
	PluginsInstall:  "server.plugins.install",
	SubusersView:    "server.subusers.view",
	SubusersManage:  "server.subusers.manage",
	ProfileView:     "account.profile.view",
	ProfileEdit:     "account.profile.edit",
}

var byName = func() map[string]Capability {
	m := make(map[string]Capability, numCapabilities)
	for i, n := range names {
		m[n] = Capability(i)
	}
	return m
}()

func (c Capability) String() string {
	if c >= numCapabilities {
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
	return names[c]
}

// Category drops the final dot segment: "server.files.read" -> "server.files".
func (c Capability) Category() string {
	name := c.String()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// Wildcard is the grant entry that covers every capability in c's category.
func (c Capability) Wildcard() string {
	return c.Category() + wildcardSuffix
}

func (c Capability) bit() uint64 { return 1 << uint(c) }

func Parse(s string) (Capability, error) {
	c, ok := byName[s]
	if !ok {
		return 0, fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

func All() []Capability {
	out := make([]Capability, numCapabilities)
	for i := range out {
		out[i] = Capability(i)
	}
	return out
}

func categoryMask(category string) uint64 {
	var mask uint64
	for i := Capability(0); i < numCapabilities; i++ {
		if i.Category() == category {
			mask |= i.bit()
		}
	}
	return mask
}

// Set is a validated grant list. Entries are kept as granted (exact names or
// category wildcards) and expanded once into a bitmask for lookups.
type Set struct {
	mask    uint64
	entries []string
	full    bool
}

func ParseSet(entries []string) (Set, error) {
	var s Set
	seen := make(map[string]struct{}, len(entries))
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if _, dup := seen[e]; dup {
			continue
		}
		switch {
		case e == fullGrant:
			return Set{}, fmt.Errorf("capability %q cannot be granted explicitly", e)
		case strings.HasSuffix(e, wildcardSuffix):
			mask := categoryMask(strings.TrimSuffix(e, wildcardSuffix))
			if mask == 0 {
				return Set{}, fmt.Errorf("unknown capability category %q", e)
			}
			s.mask |= mask
		default:
			c, err := Parse(e)
			if err != nil {
				return Set{}, err
			}
			s.mask |= c.bit()
		}
		seen[e] = struct{}{}
		s.entries = append(s.entries, e)
	}
	sort.Strings(s.entries)
	return s, nil
}

// Of builds a set of exact capabilities.
func Of(caps ...Capability) Set {
	var s Set
	for _, c := range caps {
		if c >= numCapabilities || s.Has(c) {
			continue
		}
		s.mask |= c.bit()
		s.entries = append(s.entries, c.String())
	}
	sort.Strings(s.entries)
	return s
}

func MustParseSet(entries ...string) Set {
	s, err := ParseSet(entries)
	if err != nil {
		panic(err)
	}
	return s
}

// Full is the implicit owner/admin grant. It renders as ["*"].
func Full() Set {
	return Set{mask: 1<<uint(numCapabilities) - 1, entries: []string{fullGrant}, full: true}
}

func (s Set) Has(c Capability) bool {
	return c < numCapabilities && s.mask&c.bit() != 0
}

// Covers reports whether every capability granted by other is also granted by s.
func (s Set) Covers(other Set) bool {
	return other.mask&^s.mask == 0
}

func (s Set) IsFull() bool { return s.full }

func (s Set) IsEmpty() bool { return s.mask == 0 }

func (s Set) Strings() []string {
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Expand lists every vocabulary capability the set grants.
func (s Set) Expand() []Capability {
	var out []Capability
	for i := Capability(0); i < numCapabilities; i++ {
		if s.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	parsed, err := ParseSet(entries)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

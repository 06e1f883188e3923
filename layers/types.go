package layers

import (
	"fmt"
	"os"
	"sort"
	"time"
)

// EntryKind represents the kind of filesystem object a layer entry describes
type EntryKind string

const (
	EntryKindFile      EntryKind = "file"
	EntryKindDirectory EntryKind = "directory"
)

// Defaults applied when no property scope overrides them. The modification
// time is one second after the Unix epoch, never "now": identical inputs must
// produce identical layers no matter when or where they are built.
const (
	DefaultFilePermissions      os.FileMode = 0o644
	DefaultDirectoryPermissions os.FileMode = 0o755
)

// DefaultModTime is the timestamp stamped on every entry unless a scope
// overrides it.
var DefaultModTime = time.Unix(1, 0).UTC()

// Owner identifies the user and group an entry belongs to. Either field may
// be a name or a numeric id; both empty means "unspecified" and the image
// default (root) applies.
type Owner struct {
	User  string `json:"user,omitempty"`
	Group string `json:"group,omitempty"`
}

// String renders the owner as "user:group", or "" when unspecified.
func (o Owner) String() string {
	if o.User == "" && o.Group == "" {
		return ""
	}
	return o.User + ":" + o.Group
}

// LayerEntry is one filesystem object destined for an image layer. All tar
// header fields are derived from these properties and never from a host
// stat, so the resulting layer bytes depend only on declared inputs.
type LayerEntry struct {
	SourcePath    string      `json:"sourcePath,omitempty"`
	ContainerPath string      `json:"containerPath"`
	Kind          EntryKind   `json:"kind"`
	Permissions   os.FileMode `json:"permissions"`
	ModTime       time.Time   `json:"modificationTime"`
	Owner         Owner       `json:"owner,omitempty"`
}

// Layer is a named ordered sequence of entries. The name feeds cache keys
// and diagnostics; the order matters only for deterministic hashing.
type Layer struct {
	Name    string       `json:"name"`
	Entries []LayerEntry `json:"entries"`
}

// Sort orders entries by container path. Layer content hashing depends on
// entry order, so this must be a total order independent of filesystem
// iteration.
func (l *Layer) Sort() {
	sort.Slice(l.Entries, func(i, j int) bool {
		return l.Entries[i].ContainerPath < l.Entries[j].ContainerPath
	})
}

// FilePaths returns the source paths of all file entries, in entry order.
// Cache metadata records these to detect source-set changes between builds.
func (l *Layer) FilePaths() []string {
	var paths []string
	for _, e := range l.Entries {
		if e.Kind == EntryKindFile {
			paths = append(paths, e.SourcePath)
		}
	}
	return paths
}

// validateUnique checks that no container path appears twice. Entries must
// already be sorted.
func (l *Layer) validateUnique() error {
	for i := 1; i < len(l.Entries); i++ {
		if l.Entries[i].ContainerPath == l.Entries[i-1].ContainerPath {
			return fmt.Errorf("duplicate container path in layer %q: %s", l.Name, l.Entries[i].ContainerPath)
		}
	}
	return nil
}

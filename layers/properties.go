package layers

import (
	"os"
	"time"
)

// PropertyScope is one set of entry property overrides. Nil fields inherit
// from the enclosing scope; resolution walks innermost to outermost and
// falls back to package defaults.
type PropertyScope struct {
	FilePermissions      *os.FileMode
	DirectoryPermissions *os.FileMode
	ModTime              *time.Time
	Owner                *Owner
}

// IsZero reports whether the scope overrides nothing.
func (s PropertyScope) IsZero() bool {
	return s.FilePermissions == nil && s.DirectoryPermissions == nil && s.ModTime == nil && s.Owner == nil
}

// PropertyStack resolves effective entry properties through nested scopes
// (base, then per-layer, then per-copy-directive). Push before processing
// children, pop after; the stack depth always equals the current nesting
// level. Not safe for concurrent use: each parallel resolution owns its own
// stack.
type PropertyStack struct {
	scopes []PropertyScope
}

// NewPropertyStack creates a stack with the given base scope as its
// outermost level.
func NewPropertyStack(base PropertyScope) *PropertyStack {
	return &PropertyStack{scopes: []PropertyScope{base}}
}

// Push enters a nested scope.
func (p *PropertyStack) Push(scope PropertyScope) {
	p.scopes = append(p.scopes, scope)
}

// Pop leaves the innermost scope. Popping the base scope is a programming
// error.
func (p *PropertyStack) Pop() {
	if len(p.scopes) <= 1 {
		panic("layers: property stack underflow")
	}
	p.scopes = p.scopes[:len(p.scopes)-1]
}

// Depth returns the current nesting level, counting the base scope.
func (p *PropertyStack) Depth() int {
	return len(p.scopes)
}

// FilePermissions resolves the effective file permission bits.
func (p *PropertyStack) FilePermissions() os.FileMode {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if v := p.scopes[i].FilePermissions; v != nil {
			return *v
		}
	}
	return DefaultFilePermissions
}

// DirectoryPermissions resolves the effective directory permission bits.
func (p *PropertyStack) DirectoryPermissions() os.FileMode {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if v := p.scopes[i].DirectoryPermissions; v != nil {
			return *v
		}
	}
	return DefaultDirectoryPermissions
}

// ModTime resolves the effective modification timestamp.
func (p *PropertyStack) ModTime() time.Time {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if v := p.scopes[i].ModTime; v != nil {
			return *v
		}
	}
	return DefaultModTime
}

// Owner resolves the effective ownership.
func (p *PropertyStack) Owner() Owner {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if v := p.scopes[i].Owner; v != nil {
			return *v
		}
	}
	return Owner{}
}

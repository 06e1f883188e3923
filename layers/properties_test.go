package layers

import (
	"os"
	"testing"
	"time"
)

func TestPropertyStackDefaults(t *testing.T) {
	stack := NewPropertyStack(PropertyScope{})

	if got := stack.FilePermissions(); got != DefaultFilePermissions {
		t.Errorf("FilePermissions = %o, want %o", got, DefaultFilePermissions)
	}
	if got := stack.DirectoryPermissions(); got != DefaultDirectoryPermissions {
		t.Errorf("DirectoryPermissions = %o, want %o", got, DefaultDirectoryPermissions)
	}
	if got := stack.ModTime(); !got.Equal(DefaultModTime) {
		t.Errorf("ModTime = %v, want %v", got, DefaultModTime)
	}
	if got := stack.Owner(); got != (Owner{}) {
		t.Errorf("Owner = %v, want empty", got)
	}
}

func TestPropertyStackInnermostWins(t *testing.T) {
	baseMode := os.FileMode(0o600)
	innerMode := os.FileMode(0o400)
	baseTime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	stack := NewPropertyStack(PropertyScope{
		FilePermissions: &baseMode,
		ModTime:         &baseTime,
	})
	stack.Push(PropertyScope{FilePermissions: &innerMode})

	if got := stack.FilePermissions(); got != innerMode {
		t.Errorf("FilePermissions = %o, want inner %o", got, innerMode)
	}
	// Unset in the inner scope, so the base value must still apply.
	if got := stack.ModTime(); !got.Equal(baseTime) {
		t.Errorf("ModTime = %v, want base %v", got, baseTime)
	}

	stack.Pop()
	if got := stack.FilePermissions(); got != baseMode {
		t.Errorf("after pop FilePermissions = %o, want base %o", got, baseMode)
	}
}

func TestPropertyStackBalance(t *testing.T) {
	stack := NewPropertyStack(PropertyScope{})
	if stack.Depth() != 1 {
		t.Fatalf("new stack depth = %d, want 1", stack.Depth())
	}
	stack.Push(PropertyScope{})
	stack.Push(PropertyScope{})
	if stack.Depth() != 3 {
		t.Fatalf("depth after two pushes = %d, want 3", stack.Depth())
	}
	stack.Pop()
	stack.Pop()
	if stack.Depth() != 1 {
		t.Fatalf("depth after two pops = %d, want 1", stack.Depth())
	}

	defer func() {
		if recover() == nil {
			t.Error("popping the base scope should panic")
		}
	}()
	stack.Pop()
}

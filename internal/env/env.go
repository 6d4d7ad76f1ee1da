// Package env resolves interpreter and worker-script locations for the two
// deployment layouts WhaleScope ships in: the unpacked development tree and
// the packaged resource bundle. Nothing outside this package may construct a
// script or interpreter path.
package env

import (
	"fmt"
	"os"
	"path/filepath"
)

// BuildMode says which deployment layout the process runs from. It is decided
// once at startup and never changes for the process lifetime.
type BuildMode int

const (
	Development BuildMode = iota
	Packaged
)

func (m BuildMode) String() string {
	switch m {
	case Development:
		return "development"
	case Packaged:
		return "packaged"
	default:
		return fmt.Sprintf("buildmode(%d)", int(m))
	}
}

// Paths holds the resolved locations for one build mode. All three are
// absolute once root is absolute; existence is checked by the invoker at
// spawn time, not here.
type Paths struct {
	Interpreter string
	ScriptDir   string
	WorkDir     string
}

// Resolve maps a build mode and layout root to concrete paths. It is a pure
// function: same inputs always produce the same Paths, and the development
// and packaged script directories never overlap.
func Resolve(mode BuildMode, root string) Paths {
	if mode == Packaged {
		bundle := filepath.Join(root, "pyapp")
		return Paths{
			Interpreter: filepath.Join(bundle, "venv", "bin", "python3"),
			ScriptDir:   filepath.Join(bundle, "whalescope_scripts"),
			WorkDir:     bundle,
		}
	}
	return Paths{
		Interpreter: filepath.Join(root, "python", "venv", "bin", "python3"),
		ScriptDir:   filepath.Join(root, "python", "whalescope_scripts"),
		WorkDir:     root,
	}
}

// ScriptPath returns the location of a worker script inside the resolved
// script directory. Lookup is by base filename only: the packaged layout
// relocates every worker script into one directory, so any directory
// component a caller supplies is stripped. This also rejects traversal into
// attacker-controlled locations.
func (p Paths) ScriptPath(name string) string {
	return filepath.Join(p.ScriptDir, filepath.Base(name))
}

// CheckInterpreter reports whether the resolved interpreter exists and is
// executable. The packaging step is responsible for marking it executable;
// this is the startup-time verification of that contract.
func (p Paths) CheckInterpreter() error {
	info, err := os.Stat(p.Interpreter)
	if err != nil {
		return fmt.Errorf("interpreter %s: %w", p.Interpreter, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("interpreter %s is not executable", p.Interpreter)
	}
	return nil
}

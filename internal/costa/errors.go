package costa

import (
	"errors"
	"fmt"
	"strings"
)

type Ecosystem string

const (
	Managed Ecosystem = "managed"
	Native  Ecosystem = "native"
)

// ErrContextNotInitialized is returned by the stage runners when InitContext
// has not completed.
var ErrContextNotInitialized = errors.New("costa: execution context is not initialized")

// ModuleNotFoundError reports a resolution failure in either ecosystem.
type ModuleNotFoundError struct {
	Ecosystem   Ecosystem
	ID          string
	SearchPaths []string
	Err         error
}

func (e *ModuleNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "costa: %s module %q not found", e.Ecosystem, e.ID)
	if len(e.SearchPaths) > 0 {
		fmt.Fprintf(&b, " (searched %s)", strings.Join(e.SearchPaths, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ModuleNotFoundError) Unwrap() error { return e.Err }

// EntryPointNotFoundError reports a script that loaded but exposes no
// callable entry for the requested stage.
type EntryPointNotFoundError struct {
	Script string
	Path   string
	Stage  StageType
}

func (e *EntryPointNotFoundError) Error() string {
	return fmt.Sprintf("costa: script %q (%s) has no callable entry for %s: export a function, a %q member or a \"default\" member",
		e.Script, e.Path, e.Stage, e.Stage.ExportName())
}

// Package script provides the default ScriptHost implementation. The
// embeddable scripting runtime itself is an external collaborator and
// explicitly out of scope (§1 Non-goals); this package only supplies
// the safe no-op the Sequencer runs against when no engine is wired up.
package script

import "github.com/rorelay/rorelay-server/internal/core"

// NoOpScriptHost implements core.ScriptHost with no-ops. It is the
// default collaborator when the server is run without an embedded
// scripting engine.
type NoOpScriptHost struct{}

var _ core.ScriptHost = NoOpScriptHost{}

func (NoOpScriptHost) PlayerAdded(uid uint32, nick string)   {}
func (NoOpScriptHost) PlayerDeleted(uid uint32, nick string) {}

// PlayerChat leaves the publish mode computed in §4.4 untouched.
func (NoOpScriptHost) PlayerChat(uid uint32, msg string) int { return 0 }

func (NoOpScriptHost) GameCmd(uid uint32, cmd string)     {}
func (NoOpScriptHost) FrameStep(deltaSeconds float64)     {}

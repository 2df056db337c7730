package schema

// BoxSpec describes one box as resolved by the configuration loader.
// Execution modes arrive pre-resolved through ExecutionModeFromLegacy.
type BoxSpec struct {
	ID         BoxID
	Title      string
	Content    []string
	Choices    []ChoiceSpec
	Script     []string
	Mode       ExecutionMode
	RedirectTo BoxID
	Append     bool
	WorkingDir string
}

// ChoiceSpec describes one selectable action within a box.
type ChoiceSpec struct {
	ID         ActionID
	Content    string
	Commands   []string
	Mode       ExecutionMode
	RedirectTo BoxID
	Append     bool
}

// PtySpawnRequest describes a PTY spawn. Multiple command lines are joined
// and executed sequentially inside one PTY session.
type PtySpawnRequest struct {
	BoxID      BoxID
	StreamID   StreamID
	Commands   []string
	WorkingDir string
}

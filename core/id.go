package core

import (
	"fmt"

	"pkt.systems/boxmux/schema"
)

// Stream identifiers are deterministic: intrinsic tabs derive from the box
// id, execution tabs from the action id and mode suffix. Re-dispatching the
// same action in the same mode lands on the same stream.

func contentStreamID(boxID schema.BoxID) schema.StreamID {
	return schema.StreamID(fmt.Sprintf("%s_content", boxID))
}

func choicesStreamID(boxID schema.BoxID) schema.StreamID {
	return schema.StreamID(fmt.Sprintf("%s_choices", boxID))
}

func executionStreamID(actionID schema.ActionID, mode schema.ExecutionMode) schema.StreamID {
	return schema.StreamID(fmt.Sprintf("%s_%s", actionID, mode.StreamSuffix()))
}

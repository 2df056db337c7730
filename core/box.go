package core

import "pkt.systems/boxmux/schema"

// box tracks the state of a single layout box.
type box struct {
	Spec     schema.BoxSpec
	registry *streamRegistry
}

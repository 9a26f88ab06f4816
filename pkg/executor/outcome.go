package executor

import (
	"github.com/waivern/wct/pkg/llm"
	"github.com/waivern/wct/pkg/message"
)

// Outcome is the result of attempting one artifact. The executor
// branches on the concrete variant instead of inspecting errors.
type Outcome interface {
	outcome()
}

// Completed carries the produced, validated, persisted message.
type Completed struct {
	Message *message.Message
}

// Pending reports that the artifact is waiting on asynchronous batch
// submissions. The artifact stays not_started and its descendants are
// not dispatched.
type Pending struct {
	Batch *llm.PendingBatch
}

// Failed carries the production error.
type Failed struct {
	Err error
}

// Skipped marks an artifact abandoned because a dependency failed.
type Skipped struct{}

func (Completed) outcome() {}
func (Pending) outcome()   {}
func (Failed) outcome()    {}
func (Skipped) outcome()   {}

package ram

import "github.com/vkngwrapper/core/v2/common"

// OwnerFlags is a bitset view of an owner's request state, for code that inspects the state as
// individual flags. It is derived from the request state and is never stored.
type OwnerFlags int32

var ownerFlagsMapping = common.NewFlagStringMapping[OwnerFlags]()

func (f OwnerFlags) Register(str string) {
	ownerFlagsMapping.Register(f, str)
}
func (f OwnerFlags) String() string {
	return ownerFlagsMapping.FlagsToString(f)
}

const (
	// OwnerWaitingForMemory is set from submission until the completion callback runs
	OwnerWaitingForMemory OwnerFlags = 1 << iota
	// OwnerAllocationComplete is set when pages were granted and have not yet been freed
	OwnerAllocationComplete
	// OwnerRequestAborted is set when the request was aborted, whether or not pages were granted
	OwnerRequestAborted
	// OwnerAllocationError is set when the request failed or the last submission was refused
	OwnerAllocationError
	// OwnerDeferredAllocation is set when the result was delivered after Submit returned
	OwnerDeferredAllocation
)

func init() {
	OwnerWaitingForMemory.Register("OwnerWaitingForMemory")
	OwnerAllocationComplete.Register("OwnerAllocationComplete")
	OwnerRequestAborted.Register("OwnerRequestAborted")
	OwnerAllocationError.Register("OwnerAllocationError")
	OwnerDeferredAllocation.Register("OwnerDeferredAllocation")
}

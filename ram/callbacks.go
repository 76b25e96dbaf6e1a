package ram

// ResumeCallback is invoked when a deferred request receives its result, so the owner's I/O state
// machine can continue. It runs on the goroutine that delivered the completion.
type ResumeCallback func(
	owner *Owner,
	result AllocationResult,
	userData interface{},
)

type OwnerCallbackOptions struct {
	Resume   ResumeCallback
	UserData interface{}
}

type ownerCallbacks struct {
	Callbacks *OwnerCallbackOptions
	Owner     *Owner
}

func (c *ownerCallbacks) Resume(result AllocationResult) {
	if c.Callbacks != nil && c.Callbacks.Resume != nil {
		c.Callbacks.Resume(c.Owner, result, c.Callbacks.UserData)
	}
}

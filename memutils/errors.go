package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ValidationError is returned, wrapped with details, when a request is malformed: bad resource counts,
// a bad page tier, or a request that is already in use. It is detected synchronously and is never retried.
var ValidationError error = errors.New("invalid memory request")

// AllocationError is returned, wrapped with details, when the page source failed to grant a request or
// when the allocation protocol was violated
var AllocationError error = errors.New("memory allocation failed")

// AbortedError indicates a cooperative cancellation. It is not a failure: the owner must free the
// request and may submit again.
var AbortedError error = errors.New("memory request aborted")

// CorruptionDetectedError is returned when a guarded page or structure no longer carries the values
// stamped on it when it was granted. The pages of the request are deliberately leaked.
var CorruptionDetectedError error = errors.New("memory corruption detected")

// EmptyError is returned by a cursor that has run out of granted pages
var EmptyError error = errors.New("no memory remaining in page list")

// InUseError is returned when a second request is submitted for an owner whose previous request has not
// been freed
var InUseError error = errors.New("memory request already in use")

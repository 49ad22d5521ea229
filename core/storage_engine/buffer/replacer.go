package buffer

import "fmt"

// Replacer tracks which frames are eligible for eviction and picks
// victims. The buffer pool pins a frame while any client holds it and
// unpins it once the last pin drops; only unpinned frames are returned
// by Victim.
type Replacer interface {
	// Victim selects an evictable frame and removes it from the
	// replacer. The second return is false when every frame is pinned.
	Victim() (FrameID, bool)
	// Pin marks a frame ineligible for eviction.
	Pin(frameID FrameID)
	// Unpin marks a frame eligible for eviction.
	Unpin(frameID FrameID)
	// Size returns the number of currently evictable frames.
	Size() int
}

// Policy names a page-replacement policy.
type Policy string

const (
	PolicyLRU   Policy = "lru"
	PolicyClock Policy = "clock"
)

// NewReplacer constructs the replacer for the given policy.
func NewReplacer(policy Policy, poolSize int) (Replacer, error) {
	switch policy {
	case PolicyLRU, "":
		return NewLRUReplacer(poolSize), nil
	case PolicyClock:
		return NewClockReplacer(poolSize), nil
	default:
		return nil, fmt.Errorf("unknown replacement policy %q", policy)
	}
}

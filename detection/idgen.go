package detection

import "sync"

// IDGenerator hands out incremental Detection IDs
type IDGenerator struct {
	id int64
	sync.Mutex
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next incremental number
func (id *IDGenerator) GetNext() int64 {
	id.Lock()
	defer id.Unlock()
	id.id++
	return id.id
}

// Reset restarts numbering from one, used when a new session begins
func (id *IDGenerator) Reset() {
	id.Lock()
	defer id.Unlock()
	id.id = 0
}

// Assign sets a fresh ID on every detection in place
func (id *IDGenerator) Assign(dets []Detection) {
	for i := range dets {
		dets[i].ID = id.GetNext()
	}
}

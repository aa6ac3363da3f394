// Package pool reuses Arrow record builders across batches.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const defaultMaxIdle = 4

// RecordBuilderPool keeps idle builders per schema fingerprint.
// A builder returned with Put must have been flushed with NewRecord.
type RecordBuilderPool struct {
	allocator memory.Allocator
	maxIdle   int

	mu   sync.Mutex
	idle map[string][]*array.RecordBuilder

	created atomic.Int64
	reused  atomic.Int64
}

// NewRecordBuilderPool creates a pool that keeps at most maxIdle builders
// per schema. A nil allocator uses the Go allocator.
func NewRecordBuilderPool(allocator memory.Allocator, maxIdle int) *RecordBuilderPool {
	if allocator == nil {
		allocator = memory.NewGoAllocator()
	}
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	return &RecordBuilderPool{
		allocator: allocator,
		maxIdle:   maxIdle,
		idle:      make(map[string][]*array.RecordBuilder),
	}
}

// Get returns a builder for schema, reusing an idle one when available.
func (p *RecordBuilderPool) Get(schema *arrow.Schema) *array.RecordBuilder {
	key := schema.Fingerprint()

	p.mu.Lock()
	if list := p.idle[key]; len(list) > 0 {
		rb := list[len(list)-1]
		p.idle[key] = list[:len(list)-1]
		p.mu.Unlock()
		p.reused.Add(1)
		return rb
	}
	p.mu.Unlock()

	p.created.Add(1)
	return array.NewRecordBuilder(p.allocator, schema)
}

// Put returns a builder to the pool. Builders beyond the idle limit are released.
func (p *RecordBuilderPool) Put(rb *array.RecordBuilder) {
	if rb == nil {
		return
	}
	key := rb.Schema().Fingerprint()

	p.mu.Lock()
	if len(p.idle[key]) < p.maxIdle {
		p.idle[key] = append(p.idle[key], rb)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	rb.Release()
}

// Discard releases a builder that may hold partially appended data.
func (p *RecordBuilderPool) Discard(rb *array.RecordBuilder) {
	if rb != nil {
		rb.Release()
	}
}

// Stats reports how many builders were created and how many Gets were
// served from the pool.
func (p *RecordBuilderPool) Stats() (created, reused int64) {
	return p.created.Load(), p.reused.Load()
}

// Idle returns the number of pooled builders for schema.
func (p *RecordBuilderPool) Idle(schema *arrow.Schema) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[schema.Fingerprint()])
}

// Close releases every idle builder.
func (p *RecordBuilderPool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[string][]*array.RecordBuilder)
	p.mu.Unlock()

	for _, list := range idle {
		for _, rb := range list {
			rb.Release()
		}
	}
}

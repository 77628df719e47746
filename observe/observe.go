// Package observe provides sinks for the per-round records of the optimizer.
package observe

import (
	"sync"

	"github.com/petermattis/satopt/xform"
	"go.uber.org/multierr"
)

// Recorder keeps every record in memory.
type Recorder struct {
	mu      sync.Mutex
	records []xform.Record
}

var _ xform.Observer = (*Recorder)(nil)

func (r *Recorder) OnRound(rec xform.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of the records received so far.
func (r *Recorder) Records() []xform.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]xform.Record(nil), r.records...)
}

type multi []xform.Observer

// Multi fans a record out to every observer. All observers are called even if
// some fail; their errors are combined.
func Multi(observers ...xform.Observer) xform.Observer {
	return multi(observers)
}

func (m multi) OnRound(rec xform.Record) error {
	var err error
	for _, o := range m {
		err = multierr.Append(err, o.OnRound(rec))
	}
	return err
}

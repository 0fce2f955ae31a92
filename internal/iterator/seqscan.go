package iterator

import (
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/heapfile"
	"github.com/crustylabs/crustydb/internal/plan"
)

// SeqScan pulls every live tuple out of a table's heap file in storage
// order, decoding each record against the table's schema.
type SeqScan struct {
	table *catalog.Table
	cols  []plan.ColID

	stop func()
	rows chan seqScanItem
}

type seqScanItem struct {
	row Row
	ok  bool
	err error
}

// NewSeqScan creates a scan over table, exposing its full column set in
// declaration order.
func NewSeqScan(table *catalog.Table) *SeqScan {
	return &SeqScan{table: table, cols: append([]plan.ColID{}, table.ColIDs...)}
}

func (s *SeqScan) Schema() []plan.ColID { return s.cols }

// Configure is a no-op: a sequential scan re-reads the heap file from the
// start on every Rewind regardless of whether the parent announced one.
func (s *SeqScan) Configure(willRewind bool) error { return nil }

func (s *SeqScan) Open() error { return s.runScan() }

// runScan pulls heapfile.Iter's range-over-func iterator through a
// goroutine and an unbuffered channel so Next can be called one row at a
// time, since
// Go's range-over-func iterators are normally driven by a single
// enclosing for-range loop rather than pulled incrementally by an
// external caller.
func (s *SeqScan) runScan() error {
	iterFn, err := s.table.Heap.Iter()
	if err != nil {
		return err
	}
	ch := make(chan seqScanItem)
	stopCh := make(chan struct{})
	go func() {
		defer close(ch)
		iterFn(func(_ heapfile.ValueID, data []byte) bool {
			tup, decodeErr := dtype.DecodeTuple(s.table.Schema, data)
			if decodeErr != nil {
				select {
				case ch <- seqScanItem{err: decodeErr}:
				case <-stopCh:
				}
				return false
			}
			select {
			case ch <- seqScanItem{row: Row{Fields: tup.Fields}, ok: true}:
				return true
			case <-stopCh:
				return false
			}
		})
	}()
	s.rows = ch
	s.stop = func() { close(stopCh) }
	return nil
}

func (s *SeqScan) Next() (Row, bool, error) {
	item, open := <-s.rows
	if !open || !item.ok {
		if item.err != nil {
			return Row{}, false, item.err
		}
		return Row{}, false, nil
	}
	return item.row, true, nil
}

func (s *SeqScan) Close() error {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	return nil
}

func (s *SeqScan) Rewind() error {
	if err := s.Close(); err != nil {
		return err
	}
	return s.runScan()
}

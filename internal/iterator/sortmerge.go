package iterator

import (
	"sort"

	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
)

// SortMergeJoin fully materializes both children on Open, sorts each by
// its join-key positions, then walks two cursors advancing the side
// whose current key is smaller and emitting the full cross-product of
// each equal-key range, per spec.md §4.10. When not configured to
// support Rewind, consumed ranges are discarded from the sorted buffers
// as the cursors advance past them, to cap memory; when configured to
// rewind, both buffers are kept intact.
type SortMergeJoin struct {
	left, right   Iterator
	leftKeyPos    []int
	rightKeyPos   []int
	schema        []plan.ColID
	willRewind    bool

	leftBuf, rightBuf []Row
	li, ri            int
	leftDropped       int // count trimmed off the front of leftBuf so far
	rightDropped      int

	pairLeftStart, pairRightStart int
	pairLeftEnd, pairRightEnd     int
	pi, pj                       int
	havePair                     bool
}

// NewSortMergeJoin builds a sort-merge equi-join keyed at leftKeyPos
// within left's schema and rightKeyPos within right's schema
// (positionally paired, ascending order).
func NewSortMergeJoin(left, right Iterator, leftKeyPos, rightKeyPos []int) *SortMergeJoin {
	return &SortMergeJoin{
		left: left, right: right,
		leftKeyPos: leftKeyPos, rightKeyPos: rightKeyPos,
		schema: concatSchema(left.Schema(), right.Schema()),
	}
}

func (s *SortMergeJoin) Schema() []plan.ColID { return s.schema }

// Configure always buffers both children (willRewind=false downstream),
// recording whether this join itself must support Rewind.
func (s *SortMergeJoin) Configure(willRewind bool) error {
	s.willRewind = willRewind
	if err := s.left.Configure(false); err != nil {
		return err
	}
	return s.right.Configure(false)
}

func (s *SortMergeJoin) Open() error {
	if err := s.left.Open(); err != nil {
		return err
	}
	if err := s.right.Open(); err != nil {
		return err
	}
	return s.materialize()
}

func (s *SortMergeJoin) materialize() error {
	var err error
	s.leftBuf, err = drain(s.left)
	if err != nil {
		return err
	}
	s.rightBuf, err = drain(s.right)
	if err != nil {
		return err
	}
	sortRows(s.leftBuf, s.leftKeyPos)
	sortRows(s.rightBuf, s.rightKeyPos)
	s.li, s.ri = 0, 0
	s.leftDropped, s.rightDropped = 0, 0
	s.havePair = false
	return nil
}

func drain(it Iterator) ([]Row, error) {
	var rows []Row
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

func sortRows(rows []Row, keyPos []int) {
	sort.SliceStable(rows, func(i, j int) bool {
		return compareKeys(rows[i].Fields, rows[j].Fields, keyPos) < 0
	})
}

func compareKeys(a, b []dtype.Field, keyPos []int) int {
	for _, p := range keyPos {
		c, err := fieldCompare(a[p], b[p])
		if err != nil {
			continue
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func (s *SortMergeJoin) Close() error {
	if err := s.left.Close(); err != nil {
		return err
	}
	return s.right.Close()
}

// Rewind restarts the merge over the sorted buffers kept since Open; the
// children are not read again.
func (s *SortMergeJoin) Rewind() error {
	s.li, s.ri = s.leftDropped, s.rightDropped
	s.havePair = false
	return nil
}

func (s *SortMergeJoin) Next() (Row, bool, error) {
	for {
		if s.havePair {
			if s.pi < s.pairLeftEnd {
				lrow := s.leftBuf[s.pi-s.leftDropped]
				rrow := s.rightBuf[s.pj-s.rightDropped]
				out := concatRow(lrow, rrow)
				s.pj++
				if s.pj >= s.pairRightEnd {
					s.pj = s.pairRightStart
					s.pi++
				}
				return out, true, nil
			}
			s.havePair = false
			if !s.willRewind {
				s.trim()
			}
		}

		li := s.li - s.leftDropped
		ri := s.ri - s.rightDropped
		if li >= len(s.leftBuf) || ri >= len(s.rightBuf) {
			return Row{}, false, nil
		}
		c := 0
		for k := range s.leftKeyPos {
			kc, err := fieldCompare(s.leftBuf[li].Fields[s.leftKeyPos[k]], s.rightBuf[ri].Fields[s.rightKeyPos[k]])
			if err == nil && kc != 0 {
				c = kc
				break
			}
		}
		switch {
		case c < 0:
			s.li++
		case c > 0:
			s.ri++
		default:
			lEnd := s.li
			for lEnd-s.leftDropped < len(s.leftBuf) && compareKeys(s.leftBuf[lEnd-s.leftDropped].Fields, s.leftBuf[li].Fields, s.leftKeyPos) == 0 {
				lEnd++
			}
			rEnd := s.ri
			for rEnd-s.rightDropped < len(s.rightBuf) && compareKeys(s.rightBuf[rEnd-s.rightDropped].Fields, s.rightBuf[ri].Fields, s.rightKeyPos) == 0 {
				rEnd++
			}
			s.pairLeftStart, s.pairLeftEnd = s.li, lEnd
			s.pairRightStart, s.pairRightEnd = s.ri, rEnd
			s.pi, s.pj = s.li, s.ri
			s.li, s.ri = lEnd, rEnd
			s.havePair = true
		}
	}
}

// trim discards buffer entries strictly before the current cursors,
// capping memory when Rewind support was not requested (spec.md §4.10).
func (s *SortMergeJoin) trim() {
	if s.li-s.leftDropped > 0 {
		s.leftBuf = s.leftBuf[s.li-s.leftDropped:]
		s.leftDropped = s.li
	}
	if s.ri-s.rightDropped > 0 {
		s.rightBuf = s.rightBuf[s.ri-s.rightDropped:]
		s.rightDropped = s.ri
	}
}

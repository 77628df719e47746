package observe

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/petermattis/satopt/xform"
)

// TableSink collects one row per record and renders them as a table on Flush.
type TableSink struct {
	w io.Writer

	mu   sync.Mutex
	rows [][]string
}

var _ xform.Observer = (*TableSink)(nil)

func NewTableSink(w io.Writer) *TableSink {
	return &TableSink{w: w}
}

func (s *TableSink) OnRound(rec xform.Record) error {
	stop := ""
	if rec.Stage != "0" {
		stop = rec.StopReason.String()
	}
	row := []string{
		rec.Stage,
		strconv.Itoa(rec.Round),
		fmt.Sprintf("%.2f", rec.Cost),
		strconv.Itoa(rec.Relational),
		strconv.Itoa(rec.Classes),
		strconv.Itoa(rec.Nodes),
		strconv.Itoa(rec.MergeCount),
		fmt.Sprintf("%d/%d/%.1f", rec.MinNodes, rec.MaxNodes, rec.AvgNodes),
		stop,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

// Flush renders the collected rows and clears them.
func (s *TableSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := tablewriter.NewWriter(s.w)
	table.SetHeader([]string{"stage", "round", "cost", "relational", "classes", "nodes", "merges", "alternatives", "stop"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.AppendBulk(s.rows)
	table.Render()
	s.rows = nil
}

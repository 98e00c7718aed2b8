// Package report renders runs, workflows and cost breakdowns for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/me/omicsx/pkg/model"
)

const timeLayout = "2006/01/02, 15:04:05"

// Writer renders reports to Out. It never modifies the values it is given.
type Writer struct {
	Out io.Writer
	Now func() time.Time // for relative ages; nil means time.Now
}

// New creates a Writer on out.
func New(out io.Writer) *Writer {
	return &Writer{Out: out}
}

func (w *Writer) table() *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(w.Out, 0, 0, 2, ' ', 0))
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CostDocument is the machine-readable run-cost output.
type CostDocument struct {
	Run  []Field              `json:"run"`
	Cost *model.CostBreakdown `json:"cost"`
}

// NewCostDocument pairs the run fields with the breakdown.
func NewCostDocument(exec *model.Execution, b *model.CostBreakdown) CostDocument {
	return CostDocument{Run: RunFields(exec), Cost: b}
}

// Cost renders the run summary, the per-task table, the storage line and totals.
func (w *Writer) Cost(exec *model.Execution, b *model.CostBreakdown) {
	fmt.Fprintln(w.Out, "Run")
	t := w.table()
	for _, f := range RunFields(exec) {
		t.AddLine(f.Name, f.Value)
	}
	t.Print()

	fmt.Fprintf(w.Out, "\nTask costs (%d)\n", len(b.Tasks))
	t = w.table()
	t.AddHeader("TASK", "NAME", "STATUS", "INSTANCE", "CPUS", "MEM_GIB", "GPUS", "DURATION_HR", "USD_PER_HR", "COST_USD")
	for _, tc := range b.Tasks {
		t.AddLine(
			tc.TaskID,
			tc.Name,
			string(tc.Status),
			tc.InstanceType,
			tc.Resources.CPUs,
			tc.Resources.MemoryGiB,
			tc.Resources.GPUs,
			Float(tc.DurationHours),
			Float(tc.USDPerHour),
			Float(tc.Cost),
		)
	}
	t.Print()

	fmt.Fprintln(w.Out, "\nStorage cost")
	t = w.table()
	t.AddHeader("RUN", "REQUESTED_GIB", "BILLED_GIB", "DURATION_HR", "USD_PER_GIB_HR", "COST_USD")
	requested := "default"
	if b.Storage.RequestedGiB != nil {
		requested = strconv.Itoa(*b.Storage.RequestedGiB)
	}
	t.AddLine(
		b.Storage.RunID,
		requested,
		b.Storage.BilledGiB,
		Float(b.Storage.DurationHours),
		Float(b.Storage.USDPerGiBHour),
		Float(b.Storage.Cost),
	)
	t.Print()

	fmt.Fprintln(w.Out)
	t = w.table()
	t.AddLine("Total task cost", Float(b.TotalTaskCost))
	t.AddLine("Total storage cost", Float(b.Storage.Cost))
	t.AddLine("Total", Float(b.GrandTotal))
	t.Print()
	if !b.Final {
		fmt.Fprintf(w.Out, "\nRun is %s; cost is an estimate as of %s.\n", b.Status, exec.SnapshotTime.Format(timeLayout))
	}
}

// Runs renders a run listing.
func (w *Writer) Runs(runs []model.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w.Out, "No runs found.")
		return
	}
	now := w.now()
	t := w.table()
	t.AddHeader("RUN_ID", "WORKFLOW_ID", "NAME", "STATUS", "CREATED", "START", "STOP", "AGE")
	for _, r := range runs {
		t.AddLine(r.ID, r.WorkflowID, r.Name, string(r.Status),
			formatTime(&r.CreationTime), formatTime(r.StartTime), formatTime(r.StopTime),
			humanize.RelTime(r.CreationTime, now, "ago", "from now"))
	}
	t.Print()
}

// Workflows renders a workflow listing.
func (w *Writer) Workflows(workflows []model.WorkflowSummary) {
	if len(workflows) == 0 {
		fmt.Fprintln(w.Out, "No workflows found.")
		return
	}
	now := w.now()
	t := w.table()
	t.AddHeader("ID", "NAME", "STATUS", "TYPE", "CREATED", "AGE")
	for _, wf := range workflows {
		t.AddLine(wf.ID, wf.Name, wf.Status, wf.Type,
			formatTime(&wf.CreationTime),
			humanize.RelTime(wf.CreationTime, now, "ago", "from now"))
	}
	t.Print()
}

// Float formats v with the shortest representation that round-trips, so no
// precision is lost on screen.
func Float(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/markkurossi/tabulate"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

// Timing records the duration of consecutive phases
type Timing struct {
	Start   time.Time
	Samples []*Sample
}

// Sample is one timed phase
type Sample struct {
	Label string
	Start time.Time
	End   time.Time
}

// NewTiming starts a timing
func NewTiming() *Timing {
	return &Timing{Start: time.Now()}
}

// Sample closes the current phase under label
func (t *Timing) Sample(label string) {
	start := t.Start
	if len(t.Samples) > 0 {
		start = t.Samples[len(t.Samples)-1].End
	}
	t.Samples = append(t.Samples, &Sample{Label: label, Start: start, End: time.Now()})
}

// Print prints the phases and their share of the total
func (t *Timing) Print(w io.Writer) {
	if len(t.Samples) == 0 {
		return
	}
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Phase").SetAlign(tabulate.ML)
	tab.Header("Time").SetAlign(tabulate.MR)
	tab.Header("%").SetAlign(tabulate.MR)

	total := t.Samples[len(t.Samples)-1].End.Sub(t.Start)
	for _, sample := range t.Samples {
		row := tab.Row()
		row.Column(sample.Label)
		duration := sample.End.Sub(sample.Start)
		row.Column(duration.String())
		row.Column(fmt.Sprintf("%.2f%%", float64(duration)/float64(total)*100))
	}
	row := tab.Row()
	row.Column("Total").SetFormat(tabulate.FmtBold)
	row.Column(total.String()).SetFormat(tabulate.FmtBold)
	row.Column("").SetFormat(tabulate.FmtBold)
	tab.Print(w)
}

// PrintInstance prints the size of each fold
func PrintInstance(w io.Writer, pp *vybiumzkwasm.PublicParams, u *vybiumzkwasm.Instance) {
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Fold").SetAlign(tabulate.ML)
	tab.Header("Batch").SetAlign(tabulate.MR)
	tab.Header("IVC steps").SetAlign(tabulate.MR)
	tab.Header("Constraints").SetAlign(tabulate.MR)
	tab.Header("Aux").SetAlign(tabulate.MR)

	folds := []struct {
		name  string
		batch int
		steps int
		shape r1cs.Shape
	}{
		{"execution", pp.StepSize, u.ExecutionSteps, pp.Execution.Shape},
		{"ops", pp.StepSize, u.OpsSteps, pp.Ops.Shape},
		{"scan", pp.MemoryStepSize, u.ScanSteps, pp.Scan.Shape},
	}
	for _, f := range folds {
		row := tab.Row()
		row.Column(f.name)
		row.Column(fmt.Sprintf("%d", f.batch))
		row.Column(fmt.Sprintf("%d", f.steps))
		row.Column(fmt.Sprintf("%d", f.shape.NumConstraints))
		row.Column(fmt.Sprintf("%d", f.shape.NumAux))
	}
	row := tab.Row()
	row.Column("├╴trace steps").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column(fmt.Sprintf("%d", u.TraceLen)).SetFormat(tabulate.FmtItalic)
	row = tab.Row()
	row.Column("╰╴memory cells").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column(fmt.Sprintf("%d", u.Cells)).SetFormat(tabulate.FmtItalic)
	tab.Print(w)
}

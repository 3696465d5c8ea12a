package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/vizflow/internal/scene"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
	"github.com/gyaneshwarpardhi/vizflow/internal/stimulus"
)

// benchMode toggles the two skip mechanisms.
type benchMode struct {
	name       string
	hard, soft bool
}

var benchModes = []benchMode{
	{"noSkips", false, false},
	{"onlyHardSkips", true, false},
	{"onlySoftSkips", false, true},
	{"hardSoftSkips", true, true},
}

// benchStep is one timed stimulus against a compiled model.
type benchStep struct {
	name string
	stim func() *stimulus.Stimulus
}

var benchSteps = []benchStep{
	{"norm1", func() *stimulus.Stimulus { return stimulus.Signal("norm1", "athletes") }},
	{"norm2", func() *stimulus.Stimulus { return stimulus.Signal("norm2", "gdp") }},
	{"foldField", func() *stimulus.Stimulus { return stimulus.Signal("foldField", "bronze") }},
	{"both signals", func() *stimulus.Stimulus {
		s := stimulus.New(stimulus.KindSignals, "")
		s.Signals = map[string]any{"norm1": "pop", "norm2": "athletes", "foldField": "silver"}
		return s
	}},
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare propagation with hard and soft skips toggled",
	Long: `Compiles the spec once per skip mode and times a fixed sequence of signal
updates, reporting how many nodes were evaluated or skipped in each pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("spec")
		data, _ := cmd.Flags().GetString("data")
		rows, _ := cmd.Flags().GetInt("rows")
		runs, _ := cmd.Flags().GetInt("runs")
		only, _ := cmd.Flags().GetString("mode")

		loader, err := spec.NewLoader(path, nil)
		if err != nil {
			return err
		}
		b := &bench{def: loader.Spec(), data: data, rows: rows, runs: runs}
		return b.run(cmd.Context(), cmd.OutOrStdout(), only)
	},
}

func init() {
	benchCmd.Flags().String("data", "countries", "Data source to fill with generated rows")
	benchCmd.Flags().Int("rows", 1000, "Generated rows; 0 keeps the spec's inline values")
	benchCmd.Flags().Int("runs", 10, "Repetitions per mode")
	benchCmd.Flags().String("mode", "", "Run a single mode (noSkips, onlyHardSkips, onlySoftSkips, hardSoftSkips)")
	rootCmd.AddCommand(benchCmd)
}

type bench struct {
	def  *spec.Spec
	data string
	rows int
	runs int
}

// benchRow aggregates one step of one mode over all runs.
type benchRow struct {
	mode, step                 string
	total                      time.Duration
	evaluated, hard, soft, req int
}

func (b *bench) run(ctx context.Context, out io.Writer, only string) error {
	if b.runs <= 0 {
		b.runs = 1
	}
	found := false
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "mode\tstep\tmean\tevaluated\thard\tsoft\trequeued")
	for _, mode := range benchModes {
		if only != "" && only != mode.name {
			continue
		}
		found = true
		rows, err := b.mode(ctx, mode)
		if err != nil {
			return fmt.Errorf("%s: %w", mode.name, err)
		}
		for _, r := range rows {
			n := b.runs
			fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%d\t%d\t%d\n",
				r.mode, r.step, r.total/time.Duration(n),
				r.evaluated/n, r.hard/n, r.soft/n, r.req/n)
		}
	}
	if !found {
		return fmt.Errorf("unknown mode %q", only)
	}
	return tw.Flush()
}

func (b *bench) mode(ctx context.Context, mode benchMode) ([]*benchRow, error) {
	rows := make([]*benchRow, 0, len(benchSteps)+1)
	build := &benchRow{mode: mode.name, step: "parse+build"}
	rows = append(rows, build)
	for _, st := range benchSteps {
		rows = append(rows, &benchRow{mode: mode.name, step: st.name})
	}

	for i := 0; i < b.runs; i++ {
		def := b.spec(mode)
		start := time.Now()
		m, err := scene.Compile(ctx, def, scene.WithLogger(newLogger("warn")))
		if err != nil {
			return nil, err
		}
		build.total += time.Since(start)
		build.add(m)

		for j, st := range benchSteps {
			start := time.Now()
			if err := st.stim().Apply(ctx, m.Graph()); err != nil {
				return nil, fmt.Errorf("%s: %w", st.name, err)
			}
			r := rows[j+1]
			r.total += time.Since(start)
			r.add(m)
		}
		m.Render(scene.Nop)
	}
	return rows, nil
}

func (r *benchRow) add(m *scene.Model) {
	p := m.Graph().LastPass()
	r.evaluated += p.Evaluated
	r.hard += p.HardSkipped
	r.soft += p.SoftSkipped
	r.req += p.Requeued
}

// spec copies the loaded spec with the mode's skip settings and, when rows
// is set, generated values for the bench data source.
func (b *bench) spec(mode benchMode) *spec.Spec {
	def := *b.def
	def.Engine.DisableHardSkips = !mode.hard
	def.Engine.DisableSoftSkips = !mode.soft
	if b.rows <= 0 {
		return &def
	}
	def.Data = append([]spec.Data(nil), b.def.Data...)
	for i := range def.Data {
		if def.Data[i].Name == b.data {
			def.Data[i].Values = generateRows(b.rows)
		}
	}
	return &def
}

var continents = []string{"africa", "americas", "asia", "europe", "oceania"}

// generateRows returns deterministic medal-table rows.
func generateRows(n int) []map[string]any {
	rng := rand.New(rand.NewSource(1))
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"_id":       fmt.Sprintf("c%d", i),
			"name":      fmt.Sprintf("country %d", i),
			"continent": continents[i%len(continents)],
			"gold":      float64(rng.Intn(50)),
			"silver":    float64(rng.Intn(50)),
			"bronze":    float64(rng.Intn(50)),
			"athletes":  float64(1 + rng.Intn(500)),
			"gdp":       float64(1 + rng.Intn(20000)),
			"pop":       float64(1 + rng.Intn(1000)),
		}
	}
	return out
}

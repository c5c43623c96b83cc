package cmd

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/pagepulse/pkg/agent"
	"github.com/voluzi/pagepulse/pkg/chart"
	"github.com/voluzi/pagepulse/pkg/readout"
)

const actionTimeout = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Shows a live terminal dashboard of a running agent",
	Long: `Shows the readouts and the five history charts of a running agent.

Keys: s start, x stop, r refresh, q quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(agent.NewClientFromURL(agentURL))
	},
}

type dashboard struct {
	client   *agent.Client
	grid     *ui.Grid
	table    *widgets.Table
	message  *widgets.Paragraph
	board    *chart.Board
	state    *agent.State
	notice   string
	streamed bool
}

func newDashboard(client *agent.Client) (*dashboard, error) {
	d := &dashboard{
		client:  client,
		table:   widgets.NewTable(),
		message: widgets.NewParagraph(),
	}
	d.table.Title = "PagePulse"
	d.table.RowSeparator = false
	d.message.Title = "Agent"

	surfaces := make(map[chart.Series]chart.Surface, len(chart.AllSeries))
	terms := make(map[chart.Series]*chart.TermSurface, len(chart.AllSeries))
	for _, series := range chart.AllSeries {
		s := chart.NewTermSurface(series.Title())
		surfaces[series] = s
		terms[series] = s
	}
	board, err := chart.NewBoard(chart.NewRenderer(), surfaces)
	if err != nil {
		return nil, err
	}
	d.board = board

	d.grid = ui.NewGrid()
	d.grid.Set(
		ui.NewRow(0.3,
			ui.NewCol(0.6, d.table),
			ui.NewCol(0.4, d.message),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.5, terms[chart.SeriesStress]),
			ui.NewCol(0.5, terms[chart.SeriesDOM]),
		),
		ui.NewRow(0.35,
			ui.NewCol(1.0/3, terms[chart.SeriesNetwork]),
			ui.NewCol(1.0/3, terms[chart.SeriesErrors]),
			ui.NewCol(1.0/3, terms[chart.SeriesLongTasks]),
		),
	)
	return d, nil
}

func (d *dashboard) resize(width, height int) {
	d.grid.SetRect(0, 0, width, height)
}

func (d *dashboard) render() {
	var st agent.State
	if d.state != nil {
		st = *d.state
	}
	r := readout.New(st.View, time.Now())

	unit := ""
	if r.PerMinute {
		unit = " /min"
	}
	dom := r.DOMNodes
	if r.DOMDelta != "" {
		dom = fmt.Sprintf("%s  (%s)", r.DOMNodes, r.DOMDelta)
	}
	d.table.Rows = [][]string{
		{"Status", r.Status},
		{"DOM nodes", dom},
		{"Resources" + unit, r.Resources},
		{"Errors" + unit, r.Errors},
		{"Long tasks" + unit, r.LongTasks},
		{"Stress", r.Stress},
		{"Updated", r.Updated},
	}

	text := fmt.Sprintf("%s\nstate: %s  health: %s\npoints: %d  interval: %s\n",
		d.client.URL(), st.State, st.Health, r.Points, time.Duration(st.PollMs)*time.Millisecond)
	if st.Error != "" {
		text += fmt.Sprintf("[error: %s](fg:red)\n", st.Error)
	}
	if !d.streamed {
		text += "[disconnected](fg:yellow)\n"
	}
	if d.notice != "" {
		text += d.notice + "\n"
	}
	text += "\ns start  x stop  r refresh  q quit"
	d.message.Text = text

	if err := d.board.Render(st.Points); err != nil {
		log.Debugf("error rendering charts: %v", err)
	}
	ui.Render(d.grid)
}

// act runs a control operation. A rejection is shown to the user rather than treated as fatal.
func (d *dashboard) act(name string, op func(context.Context) (*agent.State, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	st, err := op(ctx)
	if err != nil {
		d.notice = fmt.Sprintf("[%s: %v](fg:red)", name, err)
		return
	}
	d.notice = name + ": ok"
	d.state = st
}

func watch(client *agent.Client) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}
	defer ui.Close()

	d, err := newDashboard(client)
	if err != nil {
		return err
	}
	termWidth, termHeight := ui.TerminalDimensions()
	d.resize(termWidth, termHeight)

	if st, err := client.State(ctx); err == nil {
		d.state = st
	} else {
		d.notice = fmt.Sprintf("[%v](fg:red)", err)
	}

	states, err := client.Subscribe(ctx)
	d.streamed = err == nil
	d.render()

	uiEvents := ui.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e := <-uiEvents:
			switch {
			case e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>"):
				return nil
			case e.Type == ui.KeyboardEvent && e.ID == "s":
				d.act("start", client.Start)
			case e.Type == ui.KeyboardEvent && e.ID == "x":
				d.act("stop", client.Stop)
			case e.Type == ui.KeyboardEvent && e.ID == "r":
				d.act("refresh", client.Refresh)
			case e.Type == ui.ResizeEvent:
				payload := e.Payload.(ui.Resize)
				d.resize(payload.Width, payload.Height)
				ui.Clear()
			}
			d.render()

		case st, ok := <-states:
			if !ok {
				states, d.streamed = nil, false
			} else {
				d.state = &st
			}
			d.render()

		case <-ticker.C:
			if states == nil {
				if states, err = client.Subscribe(ctx); err == nil {
					d.streamed = true
				}
			}
			d.render()
		}
	}
}

package output

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/vidra-dl/vidra/internal/bus"
	"github.com/vidra-dl/vidra/internal/job"
	"github.com/vidra-dl/vidra/internal/utils"
)

type jobRow struct {
	url       string
	state     job.State
	bytes     int64
	total     int64
	rate      float64
	errDetail string
	started   time.Time
	updated   time.Time
}

// Display renders live per-job progress in place. Rows are registered as
// jobs are submitted and advance as events arrive off the bus.
type Display struct {
	mu       sync.RWMutex
	rows     map[string]*jobRow
	order    []string
	numLines int
	tick     time.Duration
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDisplay(tick time.Duration) *Display {
	if tick <= 0 {
		tick = 300 * time.Millisecond
	}
	return &Display{
		rows:   make(map[string]*jobRow),
		tick:   tick,
		doneCh: make(chan struct{}),
	}
}

// Track registers a job row in submission order. Calling it again for a
// known job refreshes the row from the summary.
func (d *Display) Track(sum job.Summary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if row, ok := d.rows[sum.ID]; ok {
		row.state = sum.State
		row.bytes = sum.Transferred
		row.total = sum.Total
		row.updated = time.Now()
		return
	}
	d.rows[sum.ID] = &jobRow{
		url:     sum.URL,
		state:   sum.State,
		bytes:   sum.Transferred,
		total:   sum.Total,
		started: time.Now(),
		updated: time.Now(),
	}
	d.order = append(d.order, sum.ID)
}

// Observe applies one bus event to its job row.
func (d *Display) Observe(ev bus.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.rows[ev.JobID]
	if !ok {
		return
	}
	row.updated = time.Now()
	switch ev.Kind {
	case bus.EventResolved:
		row.state = job.StatePending
	case bus.EventStarted, bus.EventResumed:
		row.state = job.StateRunning
	case bus.EventProgress:
		row.bytes = ev.Bytes
		row.total = ev.Total
		row.rate = ev.Rate
	case bus.EventPaused:
		row.state = job.StatePaused
		row.rate = 0
	case bus.EventCompleted:
		row.state = job.StateCompleted
		row.rate = 0
		if row.total > 0 {
			row.bytes = row.total
		}
	case bus.EventFailed:
		row.state = job.StateFailed
		row.errDetail = ev.ErrDetail
		row.rate = 0
	case bus.EventCancelled:
		row.state = job.StateCancelled
		row.rate = 0
	}
}

func (d *Display) Run() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.redraw()
			case <-d.doneCh:
				d.redraw()
				d.showSummary()
				return
			}
		}
	}()
}

func (d *Display) Stop() {
	close(d.doneCh)
	d.wg.Wait()
}

func (d *Display) statusIndicator(state job.State) string {
	switch state {
	case job.StateCompleted:
		return successStyle.Render(StyleSymbols["pass"])
	case job.StateFailed:
		return errorStyle.Render(StyleSymbols["fail"])
	case job.StateCancelled:
		return warningStyle.Render(StyleSymbols["warning"])
	case job.StateRunning:
		return infoStyle.Render(StyleSymbols["arrow"])
	case job.StatePaused:
		return warningStyle.Render(StyleSymbols["dot"])
	default:
		return pendingStyle.Render(StyleSymbols["pending"])
	}
}

func (d *Display) renderRow(row *jobRow) string {
	indicator := d.statusIndicator(row.state)
	label := row.url
	if len(label) > 48 {
		label = label[:45] + "..."
	}
	switch row.state {
	case job.StateRunning:
		var progress string
		if row.total > 0 {
			progress = progressBar(row.bytes, row.total, 30)
		} else {
			progress = debugStyle.Render(utils.FormatBytes(uint64(max(row.bytes, 0))) + " ")
		}
		speed := debugStyle.Render(utils.FormatSpeed(int64(row.rate), 1))
		return fmt.Sprintf("  %s %s %s%s", indicator, streamStyle.Render(label), progress, speed)
	case job.StateFailed:
		return fmt.Sprintf("  %s %s %s", indicator, streamStyle.Render(label), errorStyle.Render(row.errDetail))
	case job.StateCompleted:
		elapsed := row.updated.Sub(row.started).Round(time.Second)
		return fmt.Sprintf("  %s %s %s", indicator, doneStyle.Render(label), debugStyle.Render(elapsed.String()))
	default:
		return fmt.Sprintf("  %s %s %s", indicator, streamStyle.Render(label), pendingStyle.Render(string(row.state)))
	}
}

func (d *Display) redraw() {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, termHeight, _ := term.GetSize(int(os.Stdout.Fd()))
	if termHeight <= 0 {
		termHeight = 24
	}
	availableLines := termHeight - 3

	if d.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", d.numLines)
	}
	lineCount := 0
	for _, id := range d.order {
		if lineCount >= availableLines {
			break
		}
		fmt.Println(d.renderRow(d.rows[id]))
		lineCount++
	}
	d.numLines = lineCount
}

func (d *Display) showSummary() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var completed, failed, cancelled int
	for _, row := range d.rows {
		switch row.state {
		case job.StateCompleted:
			completed++
		case job.StateFailed:
			failed++
		case job.StateCancelled:
			cancelled++
		}
	}
	fmt.Println()
	fmt.Println("  " + doneStyle.Render(fmt.Sprintf("Completed %d of %d", completed, len(d.rows))))
	if failed > 0 {
		fmt.Println("  " + errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, len(d.rows))))
	}
	if cancelled > 0 {
		fmt.Println("  " + warningStyle.Render(fmt.Sprintf("Cancelled %d of %d", cancelled, len(d.rows))))
	}
	d.showErrors()
	fmt.Println()
}

func (d *Display) showErrors() {
	n := 0
	for _, id := range d.order {
		row := d.rows[id]
		if row.state != job.StateFailed || row.errDetail == "" {
			continue
		}
		if n == 0 {
			fmt.Println()
			fmt.Println("  " + errorStyle.Bold(true).Render("Errors:"))
		}
		n++
		fmt.Printf("    %s %s\n", errorStyle.Render(fmt.Sprintf("%d.", n)), streamStyle.Render(row.url))
		fmt.Printf("      %s\n", errorStyle.Render(row.errDetail))
	}
}

func progressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	if current < 0 {
		current = 0
	}
	if current > total {
		current = total
	}
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// Command emuview is a terminal console for the vemu core: it renders
// memory, CPU registers, the PCB table and the blocked queue, and lets an
// operator step, run, and unblock processes with single keystrokes. It
// does not render per-process statistics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	runewidth "github.com/mattn/go-runewidth"
	termbox "github.com/nsf/termbox-go"

	"vemu/vm"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	interval := flag.Duration("interval", 1000*time.Millisecond, "automatic tick interval")
	flag.Parse()

	cfg := vm.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "emuview:", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, "emuview:", err)
			os.Exit(1)
		}
	}

	e := vm.NewEmulator(cfg)

	files, err := readFiles(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "emuview:", err)
		os.Exit(1)
	}
	for _, err := range e.StoreFiles(files) {
		fmt.Fprintln(os.Stderr, "emuview:", err)
	}

	if err := termbox.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "emuview:", err)
		os.Exit(1)
	}
	defer termbox.Close()

	app := &console{emu: e, auto: false, interval: *interval}
	app.run()
}

func readFiles(paths []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		out[p] = data
	}
	return out, nil
}

// console owns the termbox render loop and the operator-visible state
// (status line, last events) alongside the emulator it drives.
type console struct {
	emu      *vm.Emulator
	auto     bool
	interval time.Duration
	status   string
	input    string
}

func (c *console) run() {
	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.draw()
	for {
		select {
		case ev := <-events:
			if ev.Type != termbox.EventKey {
				continue
			}
			if !c.handleKey(ev) {
				return
			}
			c.draw()
		case <-ticker.C:
			if c.auto {
				c.tick()
				c.draw()
			}
		}
	}
}

func (c *console) handleKey(ev termbox.Event) bool {
	switch ev.Key {
	case termbox.KeyCtrlC, termbox.KeyEsc:
		return false
	}

	switch ev.Ch {
	case 'q':
		return false
	case 'n':
		c.tick()
	case 'r':
		c.auto = !c.auto
		if c.auto {
			c.emu.ChangeMode(vm.ModeAutomatic)
			c.status = "automatic mode"
		} else {
			c.emu.ChangeMode(vm.ModeManual)
			c.status = "manual mode"
		}
	case 'u':
		c.promptUnblock()
	}
	return true
}

func (c *console) tick() {
	c.emu.Tick()
	for _, ev := range c.emu.DrainEvents() {
		c.status = fmt.Sprintf("%s cpu=%d pcb=%d %s", ev.Kind, ev.CPUIndex, ev.PCBID, ev.Message)
	}
}

// promptUnblock reads up to three digits directly off the termbox event
// stream (it already owns raw terminal mode) and delivers them to the
// head of the blocked queue.
func (c *console) promptUnblock() {
	digits := ""
	for {
		ev := termbox.PollEvent()
		if ev.Type != termbox.EventKey {
			continue
		}
		if ev.Key == termbox.KeyEnter {
			break
		}
		if ev.Ch >= '0' && ev.Ch <= '9' && len(digits) < 3 {
			digits += string(ev.Ch)
			c.status = "unblock value: " + digits
			c.draw()
		}
	}

	v, err := vm.ParseInputValue(digits)
	if err != nil {
		c.status = "unblock: " + err.Error()
		return
	}
	if c.emu.Unblock(v) {
		c.status = fmt.Sprintf("delivered %d to blocked queue", v)
	} else {
		c.status = "no process blocked"
	}
}

func (c *console) draw() {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)

	row := 0
	row = c.drawLine(row, "vemu — n: step  r: toggle auto  u: unblock  q: quit")
	row = c.drawLine(row, c.status)
	row++

	row = c.drawCPUs(row)
	row++
	row = c.drawPCBs(row)
	row++
	row = c.drawBlocked(row)
	row++
	c.drawMemory(row)

	termbox.Flush()
}

func (c *console) drawLine(row int, text string) int {
	col := 0
	for _, r := range text {
		termbox.SetCell(col, row, r, termbox.ColorDefault, termbox.ColorDefault)
		col += runewidth.RuneWidth(r)
	}
	return row + 1
}

func (c *console) drawCPUs(row int) int {
	row = c.drawLine(row, "CPUs")
	for i, cpu := range c.emu.CPUs {
		line := fmt.Sprintf("  cpu%-2d pcb=%-4d pc=%-5d ax=%-3d bx=%-3d cx=%-3d dx=%-3d ac=%-3d sp=%-3d ir=%-6s z=%v",
			i, cpu.BoundPCBID, cpu.PC, cpu.AX, cpu.BX, cpu.CX, cpu.DX, cpu.AC, cpu.SP, cpu.IR, cpu.Z)
		row = c.drawLine(row, line)
	}
	return row
}

func (c *console) drawPCBs(row int) int {
	row = c.drawLine(row, "PCB table")
	for _, id := range c.emu.Memory.PCBTableIDs() {
		addr, size, ok := c.emu.Memory.PCBLocation(id)
		if !ok {
			continue
		}
		pcb := c.emu.Memory.ViewPCB(addr, size)
		line := fmt.Sprintf("  pcb%-4d state=%-10s code=[%d,%d) stack=[%d,%d) pc=%d",
			pcb.ID, pcb.ProcessState, pcb.CodeSegment.Address, pcb.CodeSegment.Address+pcb.CodeSegment.Size,
			pcb.StackSegment.Address, pcb.StackSegment.Address+pcb.StackSegment.Size, pcb.PC)
		row = c.drawLine(row, line)
	}
	return row
}

func (c *console) drawBlocked(row int) int {
	ids := c.emu.Blocked.IDs()
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = fmt.Sprintf("%d", id)
	}
	return c.drawLine(row, "blocked queue: "+strings.Join(strs, ", "))
}

func (c *console) drawMemory(row int) int {
	row = c.drawLine(row, "memory (hex)")
	data := c.emu.Memory.Read(0, c.emu.Memory.Size())
	const perRow = 16
	for off := 0; off < len(data); off += perRow {
		end := off + perRow
		if end > len(data) {
			end = len(data)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "  %04d  ", off)
		for _, by := range data[off:end] {
			fmt.Fprintf(&b, "%02x ", by)
		}
		row = c.drawLine(row, b.String())
	}
	return row
}

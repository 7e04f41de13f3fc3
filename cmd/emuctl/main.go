// Command emuctl is a headless driver for the vemu core: it loads
// assembly source files, runs them to completion (or a tick budget),
// and reports the scheduler events and per-process statistics the host
// would otherwise render in a GUI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"vemu/vm"
)

var (
	configPath        string
	cpuOverride       int
	quantumOverride   int
	schedulerOverride string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "emuctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "emuctl",
		Short: "Drive the virtual OS emulator from the command line",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON config file (defaults per spec)")
	root.PersistentFlags().IntVar(&cpuOverride, "cpus", 0, "override cpu_quantity (0 = use config)")
	root.PersistentFlags().IntVar(&quantumOverride, "quantum", 0, "override RR quantum (0 = use config)")
	root.PersistentFlags().StringVar(&schedulerOverride, "scheduler", "", "override scheduler discipline (FCFS/SJF/SRT/RR/HRRN)")

	root.AddCommand(newLoadCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newStepCmd())
	root.AddCommand(newUnblockCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newResetCmd())

	return root
}

func loadConfig() (vm.Config, error) {
	cfg := vm.DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	if cpuOverride > 0 {
		cfg.CPUQuantity = cpuOverride
	}
	if quantumOverride > 0 {
		cfg.Quantum = quantumOverride
	}
	if schedulerOverride != "" {
		cfg.Scheduler = schedulerOverride
	}

	return cfg, nil
}

// readFilesConcurrently reads every path in parallel — admission itself
// stays single-threaded (spec.md §5), but the disk reads feeding it don't
// have to be.
func readFilesConcurrently(paths []string) (map[string][]byte, error) {
	g, _ := errgroup.WithContext(context.Background())
	var mu sync.Mutex
	out := make(map[string][]byte, len(paths))

	for _, p := range paths {
		p := p
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("reading %s: %w", p, err)
			}
			mu.Lock()
			out[filepath.Base(p)] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func newEmulatorWithFiles(paths []string) (*vm.Emulator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	files, err := readFilesConcurrently(paths)
	if err != nil {
		return nil, err
	}

	e := vm.NewEmulator(cfg)
	for _, err := range e.StoreFiles(files) {
		fmt.Fprintln(os.Stderr, "emuctl: store:", err)
	}
	printEvents(e.DrainEvents())
	return e, nil
}

func printEvents(events []vm.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case vm.EventDialogResult:
			fmt.Printf("[%s] %s\n", ev.Kind, ev.Message)
		case vm.EventTerminated, vm.EventBlocked:
			fmt.Printf("[%s] cpu=%d pcb=%d\n", ev.Kind, ev.CPUIndex, ev.PCBID)
		case vm.EventDispatcher:
			fmt.Printf("[%s] cpu=%d pcb=%d\n", ev.Kind, ev.CPUIndex, ev.PCBID)
		default:
			fmt.Printf("[%s]\n", ev.Kind)
		}
	}
}

// settled reports whether no further ticks can make progress: every CPU
// idle, no process blocked, and no PCB in the table New or Ready. Files in
// storage that have not been admitted yet are not checked.
func settled(e *vm.Emulator) bool {
	for _, cpu := range e.CPUs {
		if !cpu.IsEmpty() {
			return false
		}
	}
	if e.Blocked.Len() > 0 {
		return false
	}
	for _, id := range e.Memory.PCBTableIDs() {
		addr, size, ok := e.Memory.PCBLocation(id)
		if !ok {
			continue
		}
		pcb := e.Memory.ViewPCB(addr, size)
		if pcb.ProcessState == vm.StateNew || pcb.ProcessState == vm.StateReady {
			return false
		}
	}
	return true
}

func runToCompletion(e *vm.Emulator, maxTicks int) {
	e.TickScheduler()
	printEvents(e.DrainEvents())

	for i := 0; i < maxTicks && !settled(e); i++ {
		e.Tick()
		printEvents(e.DrainEvents())
	}
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [files...]",
		Short: "Admit files into storage and run one scheduler pass",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEmulatorWithFiles(args)
			if err != nil {
				return err
			}
			e.TickScheduler()
			printEvents(e.DrainEvents())
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var ticks int
	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Load files and tick until every process terminates or the tick budget is spent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEmulatorWithFiles(args)
			if err != nil {
				return err
			}
			runToCompletion(e, ticks)
			if display := e.Display(); display != "" {
				fmt.Printf("display: %q\n", display)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 1000, "maximum number of ticks to run")
	return cmd
}

func newStepCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "step [files...]",
		Short: "Load files and advance exactly N ticks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEmulatorWithFiles(args)
			if err != nil {
				return err
			}
			e.TickScheduler()
			printEvents(e.DrainEvents())
			for i := 0; i < steps; i++ {
				e.Tick()
				printEvents(e.DrainEvents())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of ticks to advance")
	return cmd
}

func newUnblockCmd() *cobra.Command {
	var value int
	cmd := &cobra.Command{
		Use:   "unblock [files...]",
		Short: "Run until a process blocks on INT H09, deliver a value, then run to completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEmulatorWithFiles(args)
			if err != nil {
				return err
			}

			e.TickScheduler()
			printEvents(e.DrainEvents())
			for i := 0; i < 1000 && e.Blocked.Len() == 0 && !settled(e); i++ {
				e.Tick()
				printEvents(e.DrainEvents())
			}

			if e.Blocked.Len() == 0 {
				fmt.Println("emuctl: no process blocked; nothing to unblock")
				return nil
			}

			v := uint8(value)
			if !cmd.Flags().Changed("value") {
				v, err = readValueFromTerminal()
				if err != nil {
					return err
				}
			}

			e.Unblock(v)
			runToCompletion(e, 1000)
			return nil
		},
	}
	cmd.Flags().IntVar(&value, "value", 0, "8-bit value to deliver to DX (prompted interactively if omitted)")
	return cmd
}

// readValueFromTerminal puts stdin into raw mode and reads up to three
// digits terminated by Enter, so an operator can answer an INT H09 block
// without an echoed, line-buffered read getting in the way.
func readValueFromTerminal() (uint8, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return 0, fmt.Errorf("--value is required when stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return 0, fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Print("input value (0-255): ")
	var digits []byte
	buf := make([]byte, 1)
	for len(digits) < 3 {
		if _, err := os.Stdin.Read(buf); err != nil {
			return 0, err
		}
		if buf[0] == '\r' || buf[0] == '\n' {
			break
		}
		if buf[0] < '0' || buf[0] > '9' {
			continue
		}
		digits = append(digits, buf[0])
		fmt.Print(string(buf[0]))
	}
	fmt.Print("\r\n")

	n, err := vm.ParseInputValue(string(digits))
	if err != nil {
		return 0, err
	}
	return n, nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [files...]",
		Short: "Run to completion and print per-process timing statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEmulatorWithFiles(args)
			if err != nil {
				return err
			}
			runToCompletion(e, 10000)

			fmt.Printf("%-6s %-12s %-12s %s\n", "pcb", "turnaround", "service", "response ratio")
			for _, s := range e.FinishedStats {
				fmt.Printf("%-6d %-12s %-12s %.3f\n", s.PCBID, s.Turnaround, s.Service, s.ResponseRatio)
			}
			fmt.Printf("total wall clock: %s\n", e.TotalWallClock())
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Construct a fresh emulator from config and confirm a clean reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e := vm.NewEmulator(cfg)
			e.Reset()
			fmt.Printf("reset: memory=%d storage=%d cpus=%d scheduler=%s\n",
				cfg.Memory, cfg.Storage, cfg.CPUQuantity, e.Scheduler.Discipline)
			return nil
		},
	}
}

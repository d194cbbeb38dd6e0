package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/shlex"

	"goclk/core"
	"goclk/host/ctl"
	"goclk/protocol"
)

var (
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config, ignored for USB CDC)")
	configPath = flag.String("config", "", "Session configuration JSON file")
)

func main() {
	flag.Parse()

	fmt.Println("goclk-ctl - Frequency Governor Console")
	fmt.Println("======================================")
	fmt.Println()

	config := ctl.DefaultConfig()
	if *configPath != "" {
		loaded, err := ctl.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		config = loaded
	}
	if *device != "" {
		config.Device = *device
	}
	if *baud != 0 {
		config.Baud = *baud
	}

	client := ctl.NewClient()
	client.SetTimeout(config.Timeout())

	fmt.Printf("Connecting to governor on %s (protocol %s)...\n", config.Device, protocol.Version)
	if err := client.ConnectWithConfig(config.SerialConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Println("Connected successfully!")

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		args, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "status":
			if err := runStatus(client); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "watch":
			if err := runWatch(client, config, args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "mode":
			if err := runMode(client, args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "level":
			if err := runLevel(client, args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "adjust":
			if err := runAdjust(client, args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "events":
			if err := runEvents(client); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "table":
			printTable()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", args[0])
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println()
	fmt.Println("Available commands:")
	fmt.Println("  status              - Print a governor state snapshot")
	fmt.Println("  watch [count]       - Poll status repeatedly (default 10 polls)")
	fmt.Println("  mode manual <mhz>   - Enter manual mode at the given frequency")
	fmt.Println("  mode auto [mhz]     - Enter auto mode, optional descent floor")
	fmt.Println("  level <mhz>         - Switch to a table frequency (manual mode)")
	fmt.Println("  adjust <delta>      - Move level by delta, negative is faster")
	fmt.Println("  events              - Print recent switch attempts")
	fmt.Println("  table               - Print the frequency table")
	fmt.Println("  quit/exit/q         - Exit the program")
	fmt.Println()
}

func runStatus(client *ctl.Client) error {
	st, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("  uptime:    %d ms\n", st.Tick)
	fmt.Printf("  frequency: %d Hz\n", st.FreqHz)
	fmt.Printf("  level:     %v\n", st.Level)
	fmt.Printf("  mode:      %v\n", st.Mode)
	fmt.Printf("  load:      %d%% fine, %d%% coarse\n", st.Load, st.CoarseLoad)
	fmt.Printf("  switches:  %d\n", st.SwitchCount)
	fmt.Printf("  timers:    %d active, %d dispatches dropped\n", st.ActiveTimers, st.Dropped)

	return nil
}

func runWatch(client *ctl.Client, config *ctl.SessionConfig, args []string) error {
	count := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid poll count %q", args[0])
		}
		count = n
	}

	polls := 0
	return client.Watch(config.WatchInterval(), func(st protocol.Status) bool {
		fmt.Printf("tick=%-10d freq=%-8d mode=%-6v load=%3d%% coarse=%3d%% switches=%d\n",
			st.Tick, st.FreqHz, st.Mode, st.Load, st.CoarseLoad, st.SwitchCount)
		polls++
		return polls < count
	})
}

func runMode(client *ctl.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mode manual <mhz> | mode auto [mhz]")
	}

	switch args[0] {
	case "manual":
		if len(args) < 2 {
			return fmt.Errorf("manual mode needs a frequency")
		}
		level, err := parseLevel(args[1])
		if err != nil {
			return err
		}
		return client.SetMode(core.ModeManual, level)

	case "auto":
		floor := core.Level8MHz
		if len(args) >= 2 {
			var err error
			if floor, err = parseLevel(args[1]); err != nil {
				return err
			}
		}
		return client.SetMode(core.ModeAuto, floor)
	}

	return fmt.Errorf("unknown mode %q (manual or auto)", args[0])
}

func runLevel(client *ctl.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: level <mhz>")
	}
	level, err := parseLevel(args[0])
	if err != nil {
		return err
	}
	return client.SetLevel(level)
}

func runAdjust(client *ctl.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: adjust <delta>")
	}
	delta, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid delta %q", args[0])
	}
	return client.Adjust(int32(delta))
}

func runEvents(client *ctl.Client) error {
	events, err := client.Events()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No switch attempts recorded")
		return nil
	}

	for _, e := range events {
		result := "ok"
		if err := protocol.CodeToError(e.Code); err != nil {
			result = err.Error()
		}
		fmt.Printf("  tick=%-10d %v -> %v  %s\n", e.Tick, e.From, e.To, result)
	}

	return nil
}

func printTable() {
	fmt.Println("  level  freq    source    pll  flash-ws")
	for i := 0; i < core.LevelCount(); i++ {
		level := core.FreqLevel(i)
		cfg, _ := core.LevelConfig(level)
		fmt.Printf("  %-6d %-7v %-9v %-4d %d\n", i, level, cfg.Source, cfg.PLLMul, cfg.FlashWS)
	}
}

// parseLevel maps a frequency in MHz to its table level.
func parseLevel(arg string) (core.FreqLevel, error) {
	mhz, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q", arg)
	}

	for i := 0; i < core.LevelCount(); i++ {
		cfg, _ := core.LevelConfig(core.FreqLevel(i))
		if cfg.FreqHz == uint32(mhz)*1000000 {
			return core.FreqLevel(i), nil
		}
	}

	return 0, fmt.Errorf("no table entry for %d MHz (see 'table')", mhz)
}

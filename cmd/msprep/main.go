// cmd/msprep/main.go
//
// Entry point for the msprep CLI. Two ways to run a protocol:
//  1. -simulate: headless run against the simulator, action log on stdout.
//  2. default: interactive TUI with blocking operator checkpoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/plateforge/msprep/internal/config"
	"github.com/plateforge/msprep/internal/labware"
	"github.com/plateforge/msprep/internal/logbook"
	"github.com/plateforge/msprep/internal/plan"
	"github.com/plateforge/msprep/internal/robot/sim"
	"github.com/plateforge/msprep/internal/run"
	"github.com/plateforge/msprep/internal/tui"
)

func main() {
	presetID := flag.String("preset", "", "shipped protocol variant to run (see -list)")
	protocolFile := flag.String("protocol", "", "path to a protocol YAML file")
	listAll := flag.Bool("list", false, "list presets and labware, then exit")
	simulate := flag.Bool("simulate", false, "run headless against the simulator and print the action log")
	labwareDir := flag.String("labware-dir", "", "directory with custom labware definitions (*.yaml, *.go)")
	logPath := flag.String("log", "msprep.log", "run log file (empty to disable)")
	flag.Parse()

	catalog := labware.Builtins()
	if err := labware.RegisterPlugins(catalog, *labwareDir); err != nil {
		die("load labware plugins: %v", err)
	}

	if *listAll {
		fmt.Println("Presets:")
		for _, id := range config.PresetIDs() {
			preset, err := config.Preset(id)
			if err != nil {
				continue
			}
			fmt.Printf("  %-16s %s\n", id, preset.Name)
		}
		fmt.Println("Labware:")
		for _, id := range catalog.IDs() {
			fmt.Printf("  %s\n", id)
		}
		return
	}

	var lb *logbook.Logbook
	if strings.TrimSpace(*logPath) != "" {
		var err error
		lb, err = logbook.New(*logPath)
		if err != nil {
			die("open log: %v", err)
		}
	}

	explicit := strings.TrimSpace(*protocolFile) != "" || strings.TrimSpace(*presetID) != ""
	proto, err := resolveProtocol(*protocolFile, *presetID)
	if err != nil {
		die("%v", err)
	}

	if *simulate {
		if err := runSimulation(catalog, proto, lb); err != nil {
			die("%v", err)
		}
		return
	}

	opts := []tui.AppOption{tui.WithLogbook(lb)}
	if explicit {
		opts = append(opts, tui.WithProtocol(proto))
	}
	p := tea.NewProgram(tui.NewApp(catalog, opts...), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		die("run ui: %v", err)
	}
}

func resolveProtocol(protocolFile, presetID string) (config.Protocol, error) {
	if path := strings.TrimSpace(protocolFile); path != "" {
		return config.Load(path)
	}
	id := strings.TrimSpace(presetID)
	if id == "" {
		id = config.DefaultPresetID
	}
	return config.Preset(id)
}

func runSimulation(catalog *labware.Catalog, proto config.Protocol, lb *logbook.Logbook) error {
	if err := proto.Validate(catalog); err != nil {
		return err
	}
	geometry, err := proto.Geometry(catalog)
	if err != nil {
		return err
	}
	built, err := plan.Build(geometry, proto.Params())
	if err != nil {
		return err
	}
	reagent, _ := catalog.Lookup(proto.Labware.Reagent)
	source, _ := catalog.Lookup(proto.Labware.Source)
	working, _ := catalog.Lookup(proto.Labware.Working)
	controller, err := sim.New(sim.SessionConfig{
		Reagent:         reagent,
		Source:          source,
		Working:         working,
		TempDeckCelsius: proto.TempDeckC,
	})
	if err != nil {
		return err
	}
	runner, err := run.New(controller, run.WithLogbook(lb))
	if err != nil {
		return err
	}
	execErr := runner.Execute(run.Request{
		Plan:            built,
		PoolOverride:    proto.PoolOverride(),
		AfterDistribute: proto.Messages.AfterDistribute,
		AfterMix:        proto.Messages.AfterMix,
	})
	for _, action := range controller.Actions() {
		fmt.Println(action)
	}
	fmt.Printf("-- %d actions, %d tips used\n", len(controller.Actions()), controller.TipsUsed())
	return execErr
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

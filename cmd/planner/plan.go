package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khryptorgraphics/elasticplan/internal/config"
	"github.com/khryptorgraphics/elasticplan/pkg/device"
	"github.com/khryptorgraphics/elasticplan/pkg/dsconfig"
	"github.com/khryptorgraphics/elasticplan/pkg/ilp"
	"github.com/khryptorgraphics/elasticplan/pkg/logging"
	"github.com/khryptorgraphics/elasticplan/pkg/planner"
	"github.com/khryptorgraphics/elasticplan/pkg/tctx"
)

var snapshotFile string

// snapshotDoc holds a JSON device snapshot: per-device straggler ratios
// and the currently-unused device id list.
type snapshotDoc struct {
	UsedSR      map[string]float64 `json:"used_sr"`
	SuspendedSR map[string]float64 `json:"suspended_sr"`
	Unused      []int              `json:"unused"`
}

func loadSnapshot(path string) (device.Snapshot, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return device.Snapshot{}, 0, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return device.Snapshot{}, 0, fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	snapshot := device.Snapshot{
		UsedSR:      make(map[device.ID]float64, len(doc.UsedSR)),
		SuspendedSR: make(map[device.ID]float64, len(doc.SuspendedSR)),
	}
	total := 0
	for key, sr := range doc.UsedSR {
		id, err := parseDeviceID(key)
		if err != nil {
			return device.Snapshot{}, 0, err
		}
		snapshot.UsedSR[id] = sr
		total++
	}
	for key, sr := range doc.SuspendedSR {
		id, err := parseDeviceID(key)
		if err != nil {
			return device.Snapshot{}, 0, err
		}
		snapshot.SuspendedSR[id] = sr
		total++
	}
	for _, id := range doc.Unused {
		snapshot.Unused = append(snapshot.Unused, device.ID(id))
		total++
	}
	return snapshot, total, nil
}

func parseDeviceID(key string) (device.ID, error) {
	var id int
	if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid device id %q: %w", key, err)
	}
	return device.ID(id), nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	fmt.Println("configuration is valid")
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.SetLevel(cfg.Logging.Level)

	snapshot, allDevices, err := loadSnapshot(snapshotFile)
	if err != nil {
		return err
	}

	model, err := planner.NewStrategyModel(planner.ModelInput{
		Ctxs:            cfg.Trainer.ToTrainerCtxs(),
		Baseline:        tctx.TrainerStrategyArgs{DP: cfg.Baseline.DP, TP: cfg.Baseline.TP, PP: cfg.Baseline.PP, Zero: cfg.Baseline.Zero},
		Snapshot:        snapshot,
		AllDevices:      allDevices,
		NumLayers:       cfg.Baseline.NumLayers,
		MicroBatches:    cfg.Baseline.MicroBatches,
		Solver:          ilp.NewBranchAndBoundSolver(cfg.Solver.TimeLimit),
		OnlyAdjustBatch: cfg.Solver.OnlyAdjustBatch,
	})
	if err != nil {
		return fmt.Errorf("failed to construct strategy model: %w", err)
	}

	plans, configs, err := model.MakePlans(context.Background())
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	out := struct {
		Plans   []tctx.TrainerStrategyArgs `json:"plans"`
		Configs []dsconfig.Config          `json:"configs"`
	}{Plans: plans, Configs: configs}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveBaseline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Baseline.TP = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseline.tp")
}

func TestValidateRejectsThresholdAtOrBelowOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trainer.StragglerThreshold = 1.0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "straggler_threshold")
}

func TestValidateRejectsMismatchedHeteroTables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trainer.HeteroTPWeight = cfg.Trainer.HeteroTPWeight[:1]
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hetero_tp_weight")
}

func TestToTrainerCtxsPreservesFields(t *testing.T) {
	cfg := DefaultConfig()
	ctxs := cfg.Trainer.ToTrainerCtxs()
	assert.Equal(t, cfg.Trainer.StragglerThreshold, ctxs.StragglerThreshold)
	assert.Equal(t, cfg.Trainer.TopK, ctxs.TopK)
}

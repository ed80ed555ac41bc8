package config

import "testing"

func TestMaxBlockAndDeltaSizeTakesTheStricterCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBlockSize = 100
	cfg.MaxDeltaSize = 40
	if got := cfg.MaxBlockAndDeltaSize(); got != 40 {
		t.Errorf("expected the smaller cap (40), got %d", got)
	}

	cfg.MaxDeltaSize = 500
	if got := cfg.MaxBlockAndDeltaSize(); got != 100 {
		t.Errorf("expected the smaller cap (100), got %d", got)
	}
}

func TestPolicyProjectsConfigFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log4BatchSize = 5
	p := cfg.Policy()

	if p.FeeToken != cfg.FeeToken {
		t.Errorf("FeeToken mismatch: got %v, want %v", p.FeeToken, cfg.FeeToken)
	}
	if p.MaxMemoLength != cfg.MaxMemoLength {
		t.Errorf("MaxMemoLength mismatch: got %d, want %d", p.MaxMemoLength, cfg.MaxMemoLength)
	}
	if p.MaxValidatorCommission != cfg.MaxValidatorCommission {
		t.Errorf("MaxValidatorCommission mismatch: got %d, want %d", p.MaxValidatorCommission, cfg.MaxValidatorCommission)
	}
	if p.LogPaymentCapacity != int(cfg.Log4BatchSize) {
		t.Errorf("LogPaymentCapacity mismatch: got %d, want %d", p.LogPaymentCapacity, cfg.Log4BatchSize)
	}
}

func TestDefaultConfigIsInternallyConsistent(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxDeltaSize > cfg.MaxBlockSize {
		t.Errorf("default MaxDeltaSize (%d) should not exceed MaxBlockSize (%d)", cfg.MaxDeltaSize, cfg.MaxBlockSize)
	}
	if cfg.Log4TreeSize == 0 {
		t.Error("default Log4TreeSize should be nonzero")
	}
}

package engine

import (
	"grass_auto/internal/config"
	"grass_auto/internal/model"
)

// ResolveMode picks the single workflow for the whole run. Modes are
// mutually exclusive in priority order: register > approve/connect > claim >
// mining (the default when no flag is set).
func ResolveMode(m config.ModeConfig) model.Mode {
	switch {
	case m.RegisterOnly:
		return model.ModeRegister
	case m.ApproveEmail || m.ConnectWallet || m.SendWalletApproveEmail || m.ApproveWalletOnEmail:
		return model.ModeApprove
	case m.ClaimRewardsOnly:
		return model.ModeClaim
	default:
		return model.ModeMining
	}
}

// needsCaptcha reports whether the resolved mode performs a call that takes a
// recaptcha token, so a missing provider fails the run before any worker
// starts.
func needsCaptcha(mode model.Mode, m config.ModeConfig) bool {
	switch mode {
	case model.ModeRegister:
		return true
	case model.ModeApprove:
		return m.ApproveEmail
	default:
		return false
	}
}

// poolSize caps concurrency at the configured thread count, except for
// mining: those sessions are long-lived and cheap, so every bound account
// mines at once.
func poolSize(mode model.Mode, threads, bindings int) int {
	if mode == model.ModeMining {
		return bindings
	}
	if threads > bindings {
		return bindings
	}
	return threads
}

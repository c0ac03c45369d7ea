package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"grass_auto/internal/input"
	"grass_auto/internal/model"
)

func (e *Engine) loadAccounts() ([]model.Account, error) {
	accounts, err := input.Accounts(e.cfg.Files.Accounts, e.cfg.IMAP.SingleAccount)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	if len(accounts) == 0 {
		e.log.Warn("no accounts found", zap.String("file", e.cfg.Files.Accounts))
		return nil, nil
	}

	mode := ResolveMode(e.cfg.Mode)
	needsMailbox := mode == model.ModeApprove &&
		(e.cfg.Mode.ApproveEmail || e.cfg.Mode.ApproveWalletOnEmail) &&
		!e.cfg.Mode.SemiAutomaticApproveLink
	if needsMailbox {
		for _, acc := range accounts {
			if acc.IMAPPassword == "" {
				return nil, fmt.Errorf(
					"approve mode needs imap passwords: provide email%spassword%simap_password lines or imap.singleAccount",
					input.Separator, input.Separator)
			}
		}
	}
	return accounts, nil
}

func (e *Engine) loadProxies(accounts int) ([]string, error) {
	proxies, err := input.Proxies(e.cfg.Files.Proxies)
	if err != nil {
		return nil, fmt.Errorf("read proxies: %w", err)
	}
	if e.cfg.StrictProxyParity && len(proxies) != accounts {
		return nil, fmt.Errorf("accounts (%d) and proxies (%d) counts must match", accounts, len(proxies))
	}
	return proxies, nil
}

func (e *Engine) loadWallets(accounts int) ([]string, error) {
	if !e.cfg.Mode.ConnectWallet {
		return nil, nil
	}
	wallets, err := input.Wallets(e.cfg.Files.Wallets)
	if err != nil {
		return nil, fmt.Errorf("read wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil, errors.New("wallet file is empty")
	}
	if len(wallets) != accounts {
		return nil, fmt.Errorf("wallets (%d) and accounts (%d) counts must match", len(wallets), accounts)
	}
	return wallets, nil
}

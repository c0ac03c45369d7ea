package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"grass_auto/internal/grass"
	"grass_auto/internal/mailbox"
	"grass_auto/internal/miner"
	"grass_auto/internal/model"
)

// runAccountImpl is one account's whole workflow. The grass client is the
// session; closing it on every exit path is the cleanup invariant.
func (e *Engine) runAccountImpl(ctx context.Context, id int, b model.Binding, mode model.Mode) error {
	if err := e.stagger(ctx, id, mode); err != nil {
		return err
	}

	cli := grass.NewClient(e.cfg.API, e.log, b.Account.Email, b.Proxy, e.limiter)
	defer cli.Close()

	e.log.Info("starting worker",
		zap.Int("worker", id),
		zap.String("email", b.Account.Email),
		zap.String("proxy", proxyTail(b.Proxy)))

	switch mode {
	case model.ModeRegister:
		return e.register(ctx, cli, b)
	case model.ModeApprove:
		return e.approve(ctx, cli, b)
	case model.ModeClaim:
		if _, err := e.authenticate(ctx, cli, b.Account); err != nil {
			return err
		}
		return cli.ClaimRewards(ctx)
	default:
		if _, err := e.authenticate(ctx, cli, b.Account); err != nil {
			return err
		}
		return miner.New(miner.Options{
			Mining:        e.cfg.Mining,
			API:           e.cfg.API,
			Store:         e.store,
			Client:        cli,
			Proxy:         b.Proxy,
			MinProxyScore: e.cfg.MinProxyScore,
			Log:           e.log,
		}).Run(ctx)
	}
}

// authenticate prefers the cached token for this (email, device) pair and
// falls back to a fresh login when the cache is cold or the token is
// rejected. The profile snapshot it returns gates the approve transitions.
func (e *Engine) authenticate(ctx context.Context, cli *grass.Client, acc model.Account) (grass.Profile, error) {
	if ld, ok, err := e.store.GetLoginData(ctx, acc.Email, cli.DeviceKey()); err != nil {
		return grass.Profile{}, err
	} else if ok && ld.AccessToken != "" {
		cli.SetCredentials(ld.UserID, ld.AccessToken)
		profile, err := cli.RetrieveUser(ctx)
		if err == nil {
			return profile, nil
		}
		var loginErr *grass.LoginError
		if !errors.As(err, &loginErr) {
			return grass.Profile{}, err
		}
		e.log.Debug("cached token rejected, logging in", zap.String("email", acc.Email))
	}

	if err := cli.Login(ctx, acc.Password); err != nil {
		return grass.Profile{}, err
	}
	if err := e.store.UpsertLoginData(ctx, acc.Email, cli.UserID(), cli.DeviceKey(), cli.Token()); err != nil {
		e.log.Warn("login data cache write failed", zap.String("email", acc.Email), zap.Error(err))
	}
	return cli.RetrieveUser(ctx)
}

func (e *Engine) register(ctx context.Context, cli *grass.Client, b model.Binding) error {
	token, err := e.solveCaptcha(ctx)
	if err != nil {
		return &grass.RegistrationError{Email: b.Account.Email, Reason: err.Error()}
	}
	if err := cli.Register(ctx, b.Account.Password, "", token); err != nil {
		return err
	}
	e.log.Info("account registered", zap.String("email", b.Account.Email))
	return nil
}

func (e *Engine) approve(ctx context.Context, cli *grass.Client, b model.Binding) error {
	profile, err := e.authenticate(ctx, cli, b.Account)
	if err != nil {
		return err
	}

	if e.cfg.Mode.ApproveEmail {
		if profile.EmailVerified {
			e.log.Info("email already verified", zap.String("email", b.Account.Email))
		} else if err := e.approveEmail(ctx, cli, b.Account); err != nil {
			return err
		}
	}

	if e.cfg.Mode.ConnectWallet {
		if profile.WalletAddress != "" {
			e.log.Info("wallet already linked", zap.String("email", b.Account.Email))
		} else if err := cli.LinkWallet(ctx, b.Wallet); err != nil {
			return err
		}
	}

	if profile.WalletVerified {
		e.log.Info("wallet already verified", zap.String("email", b.Account.Email))
		return nil
	}
	if e.cfg.Mode.SendWalletApproveEmail {
		if err := cli.SendWalletVerification(ctx); err != nil {
			return err
		}
	}
	if e.cfg.Mode.ApproveWalletOnEmail {
		src, err := e.linkSource(b.Account)
		if err != nil {
			return err
		}
		link, err := src.ApproveLink(ctx)
		if err != nil {
			return err
		}
		if err := cli.ConfirmWallet(ctx, link); err != nil {
			return err
		}
		e.log.Info("wallet verified", zap.String("email", b.Account.Email))
	}
	return nil
}

func (e *Engine) approveEmail(ctx context.Context, cli *grass.Client, acc model.Account) error {
	src, err := e.linkSource(acc)
	if err != nil {
		return err
	}

	token, err := e.solveCaptcha(ctx)
	if err != nil {
		return fmt.Errorf("captcha for email verification: %w", err)
	}
	if err := cli.SendEmailVerification(ctx, token); err != nil {
		return err
	}

	link, err := src.ApproveLink(ctx)
	if err != nil {
		return err
	}
	if err := cli.ConfirmEmail(ctx, link); err != nil {
		return err
	}
	e.log.Info("email verified", zap.String("email", acc.Email))
	return nil
}

// linkSource picks where approval links come from: operator paste in
// semi-automatic mode, the shared mailbox when one is configured, the
// account's own mailbox otherwise.
func (e *Engine) linkSource(acc model.Account) (mailbox.Source, error) {
	if e.cfg.Mode.SemiAutomaticApproveLink {
		return &mailbox.ManualSource{Email: acc.Email}, nil
	}
	if acc.IMAPPassword == "" {
		return nil, &mailbox.AuthError{Email: acc.Email, Cause: errors.New("imap password not provided")}
	}

	mboxEmail := acc.Email
	if e.cfg.IMAP.SingleAccount != "" {
		if name, _, ok := strings.Cut(e.cfg.IMAP.SingleAccount, ":"); ok {
			mboxEmail = name
		}
	}
	return &mailbox.IMAPSource{
		Email:    mboxEmail,
		Password: acc.IMAPPassword,
		Domain:   e.cfg.IMAP.Domain,
		Folder:   e.cfg.IMAP.Folder,
		Log:      e.log,
	}, nil
}

func (e *Engine) solveCaptcha(ctx context.Context) (string, error) {
	if e.solver == nil {
		return "", errors.New("no captcha provider configured")
	}
	return e.solver.Solve(ctx)
}

func proxyTail(proxy string) string {
	if len(proxy) <= 10 {
		return proxy
	}
	return proxy[len(proxy)-10:]
}

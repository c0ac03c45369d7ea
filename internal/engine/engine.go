package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"grass_auto/internal/captcha"
	"grass_auto/internal/config"
	"grass_auto/internal/grass"
	"grass_auto/internal/mailbox"
	"grass_auto/internal/model"
	"grass_auto/internal/notify"
	"grass_auto/internal/store/sqlite"
)

type Options struct {
	Config   config.Config
	Store    *sqlite.Store
	Log      *zap.Logger
	Notifier notify.Notifier
}

// Engine seeds the binding store from the input files and runs one workflow
// per binding under bounded concurrency. Worker failures never cross session
// boundaries.
type Engine struct {
	cfg      config.Config
	store    *sqlite.Store
	log      *zap.Logger
	notifier notify.Notifier
	limiter  *rate.Limiter
	solver   captcha.Solver

	succeeded atomic.Int64
	failed    atomic.Int64

	// runAccount is swapped out by tests to exercise the pool without the
	// network.
	runAccount func(ctx context.Context, id int, b model.Binding, mode model.Mode) error
}

func New(opts Options) *Engine {
	e := &Engine{
		cfg:      opts.Config,
		store:    opts.Store,
		log:      opts.Log,
		notifier: opts.Notifier,
		limiter:  rate.NewLimiter(rate.Limit(opts.Config.API.QPS), opts.Config.API.Burst),
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if solver, err := captcha.New(opts.Config.Captcha); err == nil {
		e.solver = solver
		e.log.Info("captcha provider selected", zap.String("provider", solver.Name()))
	}
	e.runAccount = e.runAccountImpl
	return e
}

// Run executes the whole orchestration: seed, spawn, wait, report. A nil
// return covers both "all workers succeeded" and "nothing to do"; per-worker
// failures surface only in logs and the summary.
func (e *Engine) Run(ctx context.Context) error {
	started := time.Now()

	mode := ResolveMode(e.cfg.Mode)
	if needsCaptcha(mode, e.cfg.Mode) && e.solver == nil {
		return fmt.Errorf("%s mode: %w", mode, captcha.ErrNoProvider)
	}

	bindings, err := e.seed(ctx)
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		return nil
	}

	threads := poolSize(mode, e.cfg.Threads, len(bindings))
	e.log.Info("run starting",
		zap.String("mode", mode.String()),
		zap.Int("accounts", len(bindings)),
		zap.Int("threads", threads))

	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup
	for i, b := range bindings {
		wg.Add(1)
		go func(id int, b model.Binding) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			e.runWorker(ctx, id, b, mode)
		}(i, b)
	}
	wg.Wait()

	total, err := e.store.TotalPoints(ctx)
	if err != nil {
		e.log.Warn("total points unavailable", zap.Error(err))
	}
	summary := notify.Summary{
		Mode:        mode.String(),
		Accounts:    len(bindings),
		Succeeded:   int(e.succeeded.Load()),
		Failed:      int(e.failed.Load()),
		TotalPoints: total,
		Elapsed:     time.Since(started),
	}
	e.log.Info("run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Float64("totalPoints", summary.TotalPoints))
	if err := e.notifier.RunFinished(summary); err != nil {
		e.log.Warn("run notification failed", zap.Error(err))
	}
	return nil
}

// seed translates the input files into bindings and writes them to the
// store. Already-bound proxies are skipped, which makes re-running against
// unchanged inputs a no-op.
func (e *Engine) seed(ctx context.Context) ([]model.Binding, error) {
	accounts, err := e.loadAccounts()
	if err != nil || accounts == nil {
		return nil, err
	}

	proxies, err := e.loadProxies(len(accounts))
	if err != nil {
		return nil, err
	}

	wallets, err := e.loadWallets(len(accounts))
	if err != nil {
		return nil, err
	}

	if err := e.store.ResetVolatileState(ctx); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}

	var bindings []model.Binding
	for i, acc := range accounts {
		if i >= len(proxies) {
			e.log.Warn("no proxy for account, skipping", zap.String("email", acc.Email))
			continue
		}
		proxy := proxies[i]

		if owner, bound, err := e.store.ProxyOwner(ctx, proxy); err != nil {
			return nil, err
		} else if bound {
			if owner != acc.Email {
				e.log.Warn("proxy already bound to another account, skipping",
					zap.String("email", acc.Email), zap.String("owner", owner))
				continue
			}
		} else {
			added, err := e.store.AddAccount(ctx, acc.Email, proxy)
			if err != nil {
				return nil, fmt.Errorf("bind %s: %w", acc.Email, err)
			}
			if !added {
				e.log.Warn("proxy binding conflict, skipping", zap.String("email", acc.Email))
				continue
			}
		}

		b := model.Binding{ID: len(bindings), Account: acc, Proxy: proxy}
		if len(wallets) > 0 {
			b.Wallet = wallets[i]
		}
		bindings = append(bindings, b)
	}

	if len(proxies) > len(accounts) {
		if err := e.store.PushExtraProxies(ctx, proxies[len(accounts):]); err != nil {
			return nil, fmt.Errorf("stash extra proxies: %w", err)
		}
		e.log.Info("extra proxies stashed", zap.Int("count", len(proxies)-len(accounts)))
	}
	return bindings, nil
}

// runWorker is the isolation boundary: every error, classified or not, ends
// here as log output plus a terminated worker.
func (e *Engine) runWorker(ctx context.Context, id int, b model.Binding, mode model.Mode) {
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			e.log.Error("worker panicked",
				zap.Int("worker", id),
				zap.String("email", b.Account.Email),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	err := e.runAccount(ctx, id, b, mode)
	if err == nil {
		e.succeeded.Add(1)
		return
	}
	e.failed.Add(1)

	fields := []zap.Field{zap.Int("worker", id), zap.String("email", b.Account.Email)}
	var loginErr *grass.LoginError
	var regErr *grass.RegistrationError
	var mailErr *mailbox.AuthError
	switch {
	case errors.Is(err, context.Canceled):
		e.log.Info("worker stopped", fields...)
	case errors.As(err, &loginErr), errors.As(err, &regErr):
		e.log.Warn(err.Error(), fields...)
	case errors.As(err, &mailErr):
		e.log.Error(err.Error(), fields...)
	case errors.Is(err, mailbox.ErrLinkNotFound):
		e.log.Warn(err.Error(), fields...)
	default:
		e.log.Error("worker failed with unhandled error", append(fields, zap.Error(err))...)
	}
}

// stagger delays a worker's first action. Mining spreads connections
// proportionally to the worker index; other modes draw from the configured
// register-delay range.
func (e *Engine) stagger(ctx context.Context, id int, mode model.Mode) error {
	var d time.Duration
	if mode == model.ModeMining {
		base := e.cfg.Mining.StartDelayBase()
		d = time.Duration(float64(id) * (1 + rand.Float64()) * float64(base))
	} else {
		min, max := e.cfg.Mode.RegisterDelayMin(), e.cfg.Mode.RegisterDelayMax()
		d = min + time.Duration(rand.Int63n(int64(max-min)+1))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

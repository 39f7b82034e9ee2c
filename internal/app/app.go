// Package app wires the pieces into the run pipeline: resolve the plan,
// wait (hot-reloading config while it does), prefill, submit at the target
// instant, then report and record the outcome.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leavebot/internal/browser"
	"leavebot/internal/config"
	"leavebot/internal/forms"
	"leavebot/internal/history"
	"leavebot/internal/notify"
	"leavebot/internal/notify/mail"
	"leavebot/internal/notify/telegram"
	"leavebot/internal/runner"
	"leavebot/internal/schedule"
	"leavebot/pkg/logx"
	"leavebot/pkg/sdnotify"
)

// Options come from the CLI.
type Options struct {
	ConfigPath   string
	Mode         schedule.Mode
	DelayMinutes int
}

type App struct {
	opts    Options
	manager *config.Manager
	logs    *logx.Service
	log     logx.Logger

	notifier *notify.Dispatcher
}

func New(opts Options, logs *logx.Service, log logx.Logger) *App {
	return &App{
		opts:    opts,
		manager: config.NewManager(opts.ConfigPath, log),
		logs:    logs,
		log:     log,
	}
}

// Run executes one full cycle and returns the run summary. A summary with
// failures is not an error; err is reserved for the pipeline itself not
// getting to the end.
func (a *App) Run(ctx context.Context) (forms.Summary, error) {
	cfg, err := a.manager.Load()
	if err != nil {
		return forms.Summary{}, err
	}
	a.applyLogging(cfg)

	plan, err := a.plan(cfg, time.Now())
	if err != nil {
		return forms.Summary{}, err
	}
	a.rebuildNotifier(cfg)

	a.log.Info("plan resolved",
		logx.String("mode", plan.Mode.String()),
		logx.Time("target", plan.Target),
		logx.Bool("exact", plan.Exact))

	sdnotify.Ready()
	defer sdnotify.Stopping()

	switch {
	case plan.Exact:
		cfg, plan, err = a.waitExact(ctx, cfg, plan)
		if err != nil {
			return forms.Summary{}, err
		}
	case plan.Mode == schedule.ModeDelay:
		sdnotify.Statusf("delaying until %s", plan.Target.Format(time.RFC3339))
		if _, err := schedule.SleepUntil(ctx, plan.Target); err != nil {
			return forms.Summary{}, err
		}
	}

	sdnotify.Status("submitting forms")
	sum := a.submit(ctx, cfg, plan)

	a.report(ctx, cfg, sum)
	return sum, nil
}

// applyLogging pushes the config's logging section into the live service.
func (a *App) applyLogging(cfg *config.Config) {
	if a.logs == nil {
		return
	}
	r := cfg.Logging.Logx()
	a.logs.Apply(logx.Config{
		Level:   r.Level,
		Console: r.Console,
		File:    logx.FileConfig{Enabled: r.FileEnabled, Path: r.FilePath},
	})
}

// plan resolves the schedule target out of a snapshot and builds the plan.
func (a *App) plan(cfg *config.Config, now time.Time) (schedule.Plan, error) {
	day, err := forms.ParseDay(cfg.Schedule.WeekdayOrDefault())
	if err != nil {
		return schedule.Plan{}, fmt.Errorf("schedule.weekday: %w", err)
	}
	h, m, s, err := config.ParseClock(cfg.Schedule.AtOrDefault())
	if err != nil {
		return schedule.Plan{}, fmt.Errorf("schedule.at: %w", err)
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return schedule.Plan{}, err
	}
	target := schedule.Target{Day: day, Hour: h, Minute: m, Second: s, Location: loc}
	return schedule.BuildPlan(now, a.opts.Mode, a.opts.DelayMinutes, target,
		cfg.Schedule.PrefillLeadOrDefault(), cfg.Schedule.ReminderLeadOrDefault())
}

func (a *App) rebuildNotifier(cfg *config.Config) {
	var channels []notify.Notifier
	if cfg.Email.Enabled {
		channels = append(channels, mail.New(cfg.Email, a.log))
	}
	if cfg.Telegram.Enabled {
		ch, err := telegram.New(cfg.Telegram, a.log)
		if err != nil {
			a.log.Warn("telegram channel unavailable", logx.Err(err))
		} else {
			channels = append(channels, ch)
		}
	}
	a.notifier = notify.NewDispatcher(a.log, 1, channels...)
}

// waitExact sleeps to the prefill instant, watching the config file and
// emitting the reminder on the way. Valid edits during the wait move the
// plan; invalid edits are rejected by the manager and never reach here.
func (a *App) waitExact(ctx context.Context, cfg *config.Config, plan schedule.Plan) (*config.Config, schedule.Plan, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := a.manager.Watch(watchCtx); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()
	updates := a.manager.Subscribe(1)
	defer a.manager.Unsubscribe(updates)

	reminded := false
	for {
		at := plan.PrefillAt
		if !reminded && !plan.ReminderAt.IsZero() && time.Now().Before(plan.ReminderAt) {
			at = plan.ReminderAt
		}
		sdnotify.Statusf("waiting for %s (next wake %s)",
			plan.Target.Format(time.RFC3339), at.Format(time.RFC3339))

		ncfg, err := a.waitFor(ctx, at, updates)
		if err != nil {
			return nil, schedule.Plan{}, err
		}
		if ncfg != nil {
			nplan, perr := a.plan(ncfg, time.Now())
			if perr != nil {
				a.log.Warn("reloaded config cannot be scheduled, keeping current plan", logx.Err(perr))
				continue
			}
			if !nplan.Target.Equal(plan.Target) {
				a.log.Info("target moved by config reload",
					logx.Time("old", plan.Target), logx.Time("new", nplan.Target))
				reminded = false
			}
			cfg, plan = ncfg, nplan
			a.applyLogging(cfg)
			a.rebuildNotifier(cfg)
			continue
		}

		if !reminded && !plan.ReminderAt.IsZero() && at.Equal(plan.ReminderAt) {
			reminded = true
			a.emitReminder(ctx, cfg)
			continue
		}
		return cfg, plan, nil
	}
}

// waitFor sleeps until at, waking early when a config update arrives.
// Returns the fresh snapshot on update, or nil once at is reached.
func (a *App) waitFor(ctx context.Context, at time.Time, updates <-chan *config.Config) (*config.Config, error) {
	for {
		d := time.Until(at)
		if d <= 0 {
			return nil, nil
		}
		// The last stretch converges precisely and ignores reloads; edits
		// landing this close to the instant wait for the next week.
		if d <= 2*time.Second {
			_, err := schedule.SleepUntil(ctx, at)
			return nil, err
		}
		timer := time.NewTimer(d - time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case ncfg := <-updates:
			timer.Stop()
			return ncfg, nil
		case <-timer.C:
		}
	}
}

func (a *App) emitReminder(ctx context.Context, cfg *config.Config) {
	targets := cfg.Targets()
	days := make([]forms.Day, 0, len(targets))
	for _, t := range targets {
		days = append(days, t.Day)
	}
	_ = a.notifier.Notify(ctx, notify.Event{
		Kind:    notify.KindReminder,
		At:      time.Now(),
		Days:    days,
		Reasons: cfg.Dates.Reasons,
	})
}

// submit runs the controller over all targets of the current snapshot.
func (a *App) submit(ctx context.Context, cfg *config.Config, plan schedule.Plan) forms.Summary {
	launcher := browser.NewChromeLauncher(browser.Options{
		Headless:      cfg.Browser.HeadlessOrDefault(),
		NavTimeout:    cfg.Browser.NavTimeoutOrDefault(),
		ActionTimeout: cfg.Browser.ActionTimeoutOrDefault(),
		UserName:      cfg.User.Name,
	}, a.log)

	ctrl := runner.New(launcher, a.notifier, runner.Options{
		RetryMax:      cfg.Run.RetryMaxOrDefault(),
		RetryBackoff:  cfg.Run.RetryBackoffOrDefault(),
		WarnTimeout:   cfg.Browser.SubmitWarnTimeoutOrDefault(),
		KillTimeout:   cfg.Browser.SubmitKillTimeoutOrDefault(),
		ScreenshotDir: cfg.Run.ScreenshotDirOrDefault(),
	}, a.log)

	return ctrl.Run(ctx, plan, cfg.Targets())
}

// report sends the summary notification and records the run.
func (a *App) report(ctx context.Context, cfg *config.Config, sum forms.Summary) {
	_ = a.notifier.Notify(ctx, notify.Event{
		Kind:    notify.KindSummary,
		At:      time.Now(),
		Summary: &sum,
	})

	store, err := history.Open(cfg.Storage, a.log)
	if err != nil {
		a.log.Warn("history store unavailable", logx.Err(err))
		return
	}
	if store == nil {
		return
	}
	defer func() { _ = store.Close() }()
	if id, err := store.RecordRun(ctx, sum); err != nil {
		a.log.Warn("recording run failed", logx.Err(err))
	} else {
		a.log.Info("run recorded", logx.Int64("run_id", id))
	}
}

// Check is the preflight behind the check command: config, browser binary
// and the enabled notification channels.
func (a *App) Check(ctx context.Context) error {
	var problems []error

	cfg, err := a.manager.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.log.Info("config ok", logx.Int("targets", len(cfg.Targets())))

	if plan, err := a.plan(cfg, time.Now()); err != nil {
		problems = append(problems, fmt.Errorf("schedule: %w", err))
	} else {
		a.log.Info("schedule ok",
			logx.String("mode", plan.Mode.String()),
			logx.Time("next_target", plan.Target),
			logx.Time("prefill_at", plan.PrefillAt))
	}

	if bin, err := browser.Probe(); err != nil {
		problems = append(problems, fmt.Errorf("browser: %w", err))
	} else {
		a.log.Info("browser ok", logx.String("binary", bin))
	}

	if cfg.Email.Enabled {
		if _, err := mail.LoadAppPassword(cfg.Email.KeyFileOrDefault()); err != nil {
			problems = append(problems, fmt.Errorf("email: %w", err))
		} else {
			a.log.Info("email key ok", logx.String("account", cfg.Email.Account))
		}
	}
	if cfg.Telegram.Enabled {
		ch, err := telegram.New(cfg.Telegram, a.log)
		if err == nil {
			err = ch.Ping(ctx)
		}
		if err != nil {
			problems = append(problems, fmt.Errorf("telegram: %w", err))
		} else {
			a.log.Info("telegram ok")
		}
	}

	return errors.Join(problems...)
}

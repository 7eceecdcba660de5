package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/signalsfoundry/debris-collision-sim/internal/config"
	"github.com/signalsfoundry/debris-collision-sim/internal/logging"
	"github.com/signalsfoundry/debris-collision-sim/internal/risk"
	"github.com/signalsfoundry/debris-collision-sim/internal/sim/session"
	"github.com/signalsfoundry/debris-collision-sim/timectrl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	ticks       uint64
	accelerated bool
	assessEvery uint64
	printConfig bool
}

func parseFlags(args []string, stderr io.Writer) (options, *flag.FlagSet, error) {
	var opts options
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML or JSON config file")
	fs.Uint64Var(&opts.ticks, "ticks", 0, "stop after this many ticks (0 uses clock.maxTicks; both 0 runs until interrupted)")
	fs.BoolVar(&opts.accelerated, "accelerated", false, "fire ticks back to back instead of at clock.tick")
	fs.Uint64Var(&opts.assessEvery, "assess-every", 0, "request a risk assessment every N ticks (0 disables)")
	fs.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration and exit")
	err := fs.Parse(args)
	return opts, fs, err
}

// run drives a headless session and writes a one-line summary to stdout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.printConfig {
		return cfg.Dump(stdout)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ticks":
			cfg.Clock.MaxTicks = opts.ticks
		case "accelerated":
			if opts.accelerated {
				cfg.Clock.Mode = timectrl.Accelerated.String()
			}
		}
	})

	log := logging.New(cfg.LoggingConfig(stderr)).With(logging.String("component", "simulator"))

	sessOpts := []session.Option{session.WithLogger(log)}
	if opts.assessEvery > 0 {
		if !cfg.Risk.Enabled {
			return errors.New("-assess-every requires risk.enabled")
		}
		client, err := risk.NewClient(cfg.Risk.Endpoint,
			risk.WithTimeout(cfg.Risk.Timeout),
			risk.WithLogger(log),
		)
		if err != nil {
			return err
		}
		sessOpts = append(sessOpts,
			session.WithAssessor(client),
			session.WithAssessmentTimeout(cfg.Risk.Timeout),
		)
	}

	sess, err := session.New(cfg.SimulationConfig(), sessOpts...)
	if err != nil {
		return err
	}

	var collisions, assessments int
	tc := timectrl.NewTimeController(cfg.Clock.Tick, cfg.ClockMode())
	tc.AddListener(func(tick uint64) {
		if res := sess.Step(ctx); res.JustCollided {
			collisions++
		}
		if opts.assessEvery > 0 && tick%opts.assessEvery == 0 {
			if _, err := sess.RequestAssessment(ctx); err == nil {
				assessments++
			} else if !errors.Is(err, session.ErrAssessmentPending) {
				log.Warn(ctx, "risk assessment not started", logging.Err(err))
			}
		}
	})

	log.Info(ctx, "starting simulation",
		logging.String("mode", cfg.ClockMode().String()),
		logging.String("tick", cfg.Clock.Tick.String()),
		logging.Uint64("max_ticks", cfg.Clock.MaxTicks),
	)
	<-tc.Start(ctx, cfg.Clock.MaxTicks)
	sess.Wait()

	snap := sess.Snapshot()
	assessment := sess.Assessment()
	log.Info(ctx, "simulation complete",
		logging.Uint64("ticks", tc.Ticks()),
		logging.Int("collisions", collisions),
		logging.Int("assessments", assessments),
	)
	_, err = fmt.Fprintf(stdout, "ticks=%d state=%s decay=%.4f distance=%.4f collisions=%d assessment=%s\n",
		tc.Ticks(), snap.State, snap.DecayFactor, snap.Distance, collisions, assessment.Phase)
	return err
}

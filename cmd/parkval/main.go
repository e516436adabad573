package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/librelane/parkval/internal/actuator"
	"github.com/librelane/parkval/internal/card"
	"github.com/librelane/parkval/internal/config"
	"github.com/librelane/parkval/internal/db"
	"github.com/librelane/parkval/internal/directory"
	lsqlite "github.com/librelane/parkval/internal/ledger/sqlite"
	"github.com/librelane/parkval/internal/maintenance"
	"github.com/librelane/parkval/internal/relay"
	"github.com/librelane/parkval/internal/reports"
	"github.com/librelane/parkval/internal/sealed"
	"github.com/librelane/parkval/internal/validator"
)

func main() {
	configPath := pflag.String("config", "", "path to the YAML config file")
	dbPath := pflag.String("db", "", "override the database path")
	fakeRelay := pflag.Bool("fake-relay", false, "use an in-memory relay instead of the PowerUSB device")
	seal := pflag.Bool("seal", false, "seal directory API credentials and exit")
	pflag.Parse()

	logger := log.New(os.Stdout, "parkval ", log.LstdFlags|log.LUTC)

	if *seal {
		if err := runSeal(); err != nil {
			logger.Fatalf("seal credentials: %v", err)
		}
		return
	}

	if err := run(logger, *configPath, *dbPath, *fakeRelay); err != nil {
		logger.Fatal(err)
	}
}

func run(logger *log.Logger, configPath, dbPath string, fakeRelay bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	dir, err := openDirectory(cfg.Directory)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqldb, err := db.Open(ctx, db.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer sqldb.Close()

	writer := db.NewWorker(sqldb)
	defer writer.Close()
	store := lsqlite.New(sqldb, writer)

	// A ledger without a reset event gets one now so the periodic
	// reset interval has an anchor.
	if _, ok, err := store.TimeSinceLastReset(ctx, time.Now()); err != nil {
		return fmt.Errorf("read ledger reset state: %w", err)
	} else if !ok {
		if err := store.BulkReset(ctx); err != nil {
			return fmt.Errorf("initialize ledger: %w", err)
		}
		logger.Printf("initialized empty usage ledger")
	}

	rly, cleanup, err := openRelay(cfg.Relay, fakeRelay, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	profile, err := card.NewProfile(cfg.Barcode.Prefix, cfg.Barcode.Length, cfg.Barcode.FailBlocks)
	if err != nil {
		return err
	}

	machine := validator.New(validator.Config{
		MaxValidations:     cfg.Validation.MaxValidations,
		ValidationInterval: cfg.Validation.Interval.Std(),
		FailureThreshold:   cfg.Failures.Threshold,
		LockoutCooldown:    cfg.Failures.Lockout.Std(),
		IdleTimeout:        cfg.Maintenance.IdleTimeout.Std(),
		ValidateDuration:   cfg.Validation.Duration.Std(),
		TouchlessDelay:     cfg.Validation.TouchlessDelay.Std(),
		AdminBarcodes:      cfg.Barcode.Admin,
		DebugBarcodes:      cfg.Barcode.Debug,
	}, validator.Dependencies{
		Profile:   profile,
		Ledger:    store,
		Directory: dir,
		Gate:      actuator.NewGate(rly, logger),
		Logger:    logger,
	})

	reporter, err := openReporter(ctx, cfg.Report, logger)
	if err != nil {
		return err
	}

	sched := maintenance.NewScheduler(maintenance.Config{
		TickInterval:  cfg.Maintenance.TickInterval.Std(),
		ResetInterval: cfg.Database.ResetInterval.Std(),
		ReportDay:     cfg.Report.Day,
		ReportHour:    cfg.Report.Hour,
		ReportMinute:  cfg.Report.Minute,
		ReportDir:     cfg.Report.Dir,
	}, store, machine, reporter, logger, nil)
	sched.Start(ctx)
	defer sched.Stop()

	go scanLoop(ctx, machine, stop)

	fmt.Println(msgScanCard)
	<-ctx.Done()
	logger.Printf("shutting down")
	return nil
}

// scanLoop reads the barcode-entry device. The scanner presents as a
// keyboard, so each input line is one scan token; '+' and '-' are the
// validate and admin-reset keys.
func scanLoop(ctx context.Context, machine *validator.Machine, stop func()) {
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		if ctx.Err() != nil {
			return
		}
		token := strings.TrimSpace(in.Text())

		var d validator.Decision
		switch token {
		case "+":
			d = machine.Validate(ctx)
		case "-":
			d = machine.AdminReset(ctx)
		default:
			d = machine.Scan(ctx, token)
		}
		if msg := render(d); msg != "" {
			fmt.Println(msg)
		}
	}
	// EOF on stdin ends the session.
	stop()
}

func openDirectory(cfg config.Directory) (directory.Client, error) {
	if cfg.SealedCredentials == "" {
		return nil, fmt.Errorf("directory.sealed_credentials is required; run with --seal to produce it")
	}
	pass, err := promptPassword("passphrase for directory API credentials: ")
	if err != nil {
		return nil, err
	}
	secret, err := sealed.Unseal(cfg.SealedCredentials, pass)
	if err != nil {
		return nil, fmt.Errorf("unseal directory credentials: %w", err)
	}
	return directory.NewHTTPClient(cfg.URL, secret)
}

func openRelay(cfg config.Relay, fake bool, logger *log.Logger) (relay.Relay, func(), error) {
	if fake {
		logger.Printf("using in-memory relay")
		return relay.NewFake(), func() {}, nil
	}

	dev, err := relay.OpenPowerUSB(cfg.Device)
	if err != nil {
		return nil, nil, fmt.Errorf("open relay device: %w", err)
	}
	// Known-safe starting state.
	if err := dev.Deenergize(); err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("reset relay: %w", err)
	}
	return dev, func() {
		if err := dev.Deenergize(); err != nil {
			logger.Printf("de-energize relay on shutdown: %v", err)
		}
		dev.Close()
	}, nil
}

func openReporter(ctx context.Context, cfg config.Report, logger *log.Logger) (reports.Reporter, error) {
	if cfg.Day == 0 {
		return reports.LogReporter{Logger: logger}, nil
	}
	return reports.NewSESReporter(ctx, cfg.AWSRegion, cfg.From, cfg.Recipients, logger)
}

// runSeal prompts for the directory API credentials and a passphrase,
// and prints the sealed blob for the config file.
func runSeal() error {
	creds, err := promptPassword("directory API credentials (key:secret): ")
	if err != nil {
		return err
	}
	pass, err := promptPassword("sealing passphrase: ")
	if err != nil {
		return err
	}
	again, err := promptPassword("confirm passphrase: ")
	if err != nil {
		return err
	}
	if pass != again {
		return fmt.Errorf("passphrases do not match")
	}

	blob, err := sealed.Seal([]byte(creds), pass)
	if err != nil {
		return err
	}
	fmt.Printf("sealed_credentials: %s\n", blob)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(b), nil
}

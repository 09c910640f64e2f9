package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/robfig/cron/v3"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tabvault/tabvault/app/backup"
	"github.com/tabvault/tabvault/app/browser"
	"github.com/tabvault/tabvault/app/store"
	"github.com/tabvault/tabvault/app/tabs"
	"github.com/tabvault/tabvault/app/web"
)

var opts struct {
	DBPath       string `short:"f" long:"db" env:"TABVAULT_DB" default:"tabvault.db" description:"sqlite database file"`
	Listen       string `short:"l" long:"listen" env:"TABVAULT_LISTEN" default:":8080" description:"web api listen address"`
	Browser      string `short:"b" long:"browser" env:"TABVAULT_BROWSER" description:"browser CDP endpoint, e.g. http://127.0.0.1:9222"`
	BackupSpec   string `long:"backup" env:"TABVAULT_BACKUP" default:"@daily" description:"backup schedule, cron spec"`
	PageSize     int    `long:"page-size" env:"TABVAULT_PAGE_SIZE" default:"20" description:"page size for the tabs listing"`
	AuthHash     string `long:"auth-hash" env:"TABVAULT_AUTH_HASH" description:"bcrypt hash protecting the api, empty disables auth"`
	UninstallURL string `long:"uninstall-url" env:"TABVAULT_UNINSTALL_URL" description:"data-loss notice url reported by status"`
	Dbg          bool   `long:"dbg" env:"TABVAULT_DEBUG" description:"debug mode"`

	Repeater struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"how many times to repeat failed browser connect"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"3" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"repeater" namespace:"repeater" env-namespace:"TABVAULT_REPEATER"`

	Log struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable logging"`
		Filename   string `long:"file" env:"FILE" description:"log to file instead of stdout"`
		MaxSize    int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size, megabytes"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"TABVAULT_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("tabvault %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] tabvault failed, %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	st, err := store.New(opts.DBPath)
	if err != nil {
		return fmt.Errorf("can't open store at %s: %w", opts.DBPath, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("[WARN] failed to close store: %v", err)
		}
	}()

	manager := tabs.New(st)

	var browserClient web.BrowserClient
	if opts.Browser != "" {
		rptr := repeater.New(&strategy.Backoff{Repeats: opts.Repeater.Attempts, Duration: opts.Repeater.Duration,
			Factor: opts.Repeater.Factor, Jitter: opts.Repeater.Jitter})
		client, err := browser.Connect(ctx, opts.Browser, rptr)
		if err != nil {
			return fmt.Errorf("can't connect to browser: %w", err)
		}
		defer client.Shutdown()
		browserClient = client
	} else {
		log.Printf("[WARN] no browser endpoint configured, save operations disabled")
	}

	backupScheduler := &backup.Scheduler{Cron: cron.New(), Snapshotter: manager, Spec: opts.BackupSpec}

	srv, err := web.New(web.Config{
		Tabs:         manager,
		Browser:      browserClient,
		Backup:       backupScheduler,
		BackupInfo:   st,
		PageSize:     opts.PageSize,
		Version:      revision,
		PasswordHash: opts.AuthHash,
		UninstallURL: opts.UninstallURL,
	})
	if err != nil {
		return fmt.Errorf("can't make web server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := backupScheduler.Do(ctx); err != nil {
			log.Printf("[ERROR] backup scheduler failed: %v", err)
			cancel() // bad schedule spec, no point running without backups
		}
	}()

	webErr := srv.Run(ctx, opts.Listen)

	if opts.UninstallURL != "" {
		log.Printf("[INFO] local data in %s is not synced anywhere, see %s", opts.DBPath, opts.UninstallURL)
	}
	return webErr
}

func setupLogs() io.Writer {
	if !opts.Log.Enabled {
		log.Setup(log.Out(io.Discard), log.Err(io.Discard))
		return os.Stdout
	}

	logOpts := []log.Option{log.Msec}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}

	var out io.Writer = os.Stdout
	if opts.Log.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
		}
		logOpts = append(logOpts, log.Out(out))
	}
	log.Setup(logOpts...)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM)
}

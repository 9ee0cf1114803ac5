// Command nexa runs the media server: catalog database, scan pipeline, job
// workers, and the HTTP API in one process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexalabs/nexa/internal/agents"
	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/fsbrowse"
	"github.com/nexalabs/nexa/internal/hubs"
	"github.com/nexalabs/nexa/internal/images"
	"github.com/nexalabs/nexa/internal/jobs"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/playback"
	"github.com/nexalabs/nexa/internal/scanner"
	"github.com/nexalabs/nexa/internal/search"
	"github.com/nexalabs/nexa/internal/server"
	"github.com/nexalabs/nexa/internal/settings"
	"github.com/nexalabs/nexa/internal/trickplay"
)

// Startup failure exit codes.
const (
	exitConfig   = 1
	exitDatabase = 2
	exitPortBind = 3
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("info", false)
		logger.Error("configuration failed", "error", err)
		os.Exit(exitConfig)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.JSON)

	if cfg.Auth.TokenSecret == "" {
		logger.Error("auth.token_secret is required")
		os.Exit(exitConfig)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(exitDatabase)
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(exitDatabase)
	}

	bus := events.NewBus()
	defer bus.Close()

	settingsStore := settings.NewStore(db)
	sections := catalog.NewSectionRepository(db)
	items := catalog.NewItemRepository(db)
	parts := catalog.NewPartRepository(db)
	states := catalog.NewStateRepository(db)
	bulk := catalog.NewBulkRepository(db)

	agentList := []agents.Agent{
		agents.NewSidecarNFOAgent(),
		agents.NewEmbeddedAudioAgent(),
		agents.NewLocalFilenameAgent(),
	}
	if remoteOpts, err := settingsStore.RemoteMetadata(); err == nil && remoteOpts.BaseAddress != "" {
		client, err := agents.NewRemoteClient(remoteOpts)
		if err != nil {
			logger.Warn("remote metadata agent disabled", "error", err)
		} else {
			agentList = append(agentList, agents.NewRemoteCatalogAgent(client))
		}
	}
	registry := agents.NewRegistry(agentList...)

	sc := scanner.New(cfg.Scanner, sections, items, parts, bulk, registry, settingsStore, nil, bus)

	jobStore := jobs.NewNotificationStore(db)
	scheduler := jobs.NewScheduler(cfg.Redis.Addr, jobStore)
	defer scheduler.Close()
	sc.SetEnqueuer(scheduler)

	notifyOpts, err := settingsStore.JobNotification()
	if err != nil {
		notifyOpts = settings.DefaultJobNotification()
	}
	reporter := jobs.NewReporter(jobStore, bus,
		time.Duration(notifyOpts.FlushIntervalMs)*time.Millisecond)

	imageProcessor := images.NewProcessor(cfg.Images.CacheDir, items)
	trickplayGen := trickplay.NewGenerator(cfg.Transcode, cfg.Database.DataDir, parts, settingsStore)
	analyzer := scanner.NewAnalyzer(cfg.Transcode.FFprobePath, parts)

	worker := jobs.NewWorker(cfg.Redis.Addr, 0, jobStore, reporter,
		sc, items, imageProcessor, trickplayGen, analyzer)

	retention := jobs.NewRetention(jobStore, settingsStore)
	if err := retention.Start(); err != nil {
		logger.Warn("job history retention disabled", "error", err)
	}
	defer retention.Stop()

	playbackManager := playback.NewManager(cfg.Transcode, settingsStore)
	defer playbackManager.Close()

	var mediaRoots []string
	if all, err := sections.List(); err == nil {
		for _, section := range all {
			for _, loc := range section.Locations {
				mediaRoots = append(mediaRoots, loc.RootPath)
			}
		}
	}

	srv := server.New(server.Deps{
		Config:    cfg,
		DB:        db,
		Bus:       bus,
		Settings:  settingsStore,
		Auth:      auth.NewService(db, cfg.Auth.TokenSecret, settingsStore, bus),
		Sections:  sections,
		Items:     items,
		Parts:     parts,
		States:    states,
		Hubs:      hubs.NewEngine(db, items, sections),
		HubConfig: hubs.NewConfigStore(db),
		Search:    search.NewEngine(items),
		Browser:   &fsbrowse.Browser{ExtraRoots: mediaRoots},
		Scheduler: scheduler,
		JobStore:  jobStore,
		Scanner:   sc,
		Images:    imageProcessor,
		Trickplay: trickplayGen,
		Playback:  playbackManager,
		Profiles:  playback.NewProfileStore(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		reporter.Run(ctx)
		return nil
	})
	group.Go(func() error {
		return worker.Run(ctx)
	})

	if cfg.Scanner.WatchLibraries {
		watcher := scanner.NewWatcher(sections, func(sectionID uint) {
			if _, err := scheduler.Enqueue(database.JobLibraryScan, &sectionID, nil); err != nil {
				logger.Warn("watch-triggered scan failed to enqueue", "section", sectionID, "error", err)
			}
		})
		group.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	group.Go(func() error {
		return srv.Run(ctx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("server failed", "error", err)
		if errs.Is(err, errs.Unavailable) {
			os.Exit(exitPortBind)
		}
		os.Exit(exitConfig)
	}
	logger.Info("shutdown complete")
}

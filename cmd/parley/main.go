package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/events"
	"github.com/parleychat/parley/internal/i18n"
	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/roster"
	"github.com/parleychat/parley/internal/scheduler"
	"github.com/parleychat/parley/internal/services/ai"
	"github.com/parleychat/parley/internal/services/cache"
	"github.com/parleychat/parley/internal/services/recordstore"
	"github.com/parleychat/parley/internal/services/settings"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/pkg/logger"
	"github.com/parleychat/parley/pkg/markdown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting Parley conversation engine...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Initialize local cache
	local := cache.NewLocal()

	// Initialize remote record store
	var remote recordstore.Store
	switch cfg.Storage.Remote {
	case "http":
		remote = recordstore.NewHTTPStore(cfg.Storage.HTTP.URL, cfg.Storage.HTTP.Timeout, log)
		log.WithField("url", cfg.Storage.HTTP.URL).Info("Using HTTP record store")
	case "redis":
		redisStore, err := recordstore.NewRedisStore(&cfg.Storage.Redis, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to redis")
		}
		remote = redisStore
		log.WithField("addr", cfg.Storage.Redis.Addr).Info("Using redis record store")
	default:
		log.Info("No remote record store configured")
	}

	// Initialize event broadcaster and message store
	broadcaster := events.NewBroadcaster(log)
	msgStore := store.NewMessageStore(local, remote, broadcaster, metrics, log)

	// Initialize rate limiter and completion pipeline
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	client := ai.NewHTTPClient(rateLimiter, metrics, log)
	summarizer := ai.NewSummarizer(client, metrics, log)
	generator := ai.NewGenerator(client, summarizer, log)

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize settings service with config-derived defaults
	settingsSvc := settings.NewService(local, models.ChatSettings{
		MinInterval:    cfg.Chat.MinInterval,
		MaxInterval:    cfg.Chat.MaxInterval,
		ResponseChance: cfg.Chat.ResponseChance,
	}, log)

	// The scheduler and the one-on-one session share one settings
	// block; the scheduler owns writes to it.
	chatSettings := settingsSvc.Current()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sched := scheduler.New(msgStore, generator, localizer, &chatSettings,
		cfg.Chat.ContextMessages, scheduler.NewClock(), rng, metrics, log)

	settingsSvc.OnChange(func(updated models.ChatSettings) {
		sched.UpdateSettings(ctx, updated)
	})

	// Initialize roster with deletion cascade into the scheduler and
	// the message log
	rosterSvc := roster.New(local, log)
	rosterSvc.RoomDeleted = func(roomID string) {
		sched.RoomDeleted(roomID)
		msgStore.Delete(ctx, roomID)
	}

	// Initialize one-on-one chat session
	session := chat.NewSession(local, generator, &chatSettings, localizer, log)

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		extra := make(map[string]http.Handler)
		if cfg.Storage.File.Enabled {
			extra["/api/messages"] = recordstore.NewFileServer(cfg.Storage.File.Path, log)
			log.WithField("path", cfg.Storage.File.Path).Info("Serving record endpoint")
		}
		extra["/rooms/{room}/transcript"] = transcriptHandler(rosterSvc, msgStore, log)

		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path, extra); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Mirror room activity onto the console
	feed, unsubscribe := broadcaster.Subscribe()
	defer unsubscribe()
	go func() {
		for event := range feed {
			if event.Type == events.TypeMessage && event.Message != nil {
				fmt.Printf("[%s] %s: %s\n", event.Message.Timestamp.Format("15:04:05"),
					event.Message.Author, event.Message.Text)
			}
		}
	}()

	// Resume auto-chat in the configured room, if any
	if cfg.Chat.AutoStartRoom != "" {
		if room := findRoom(rosterSvc, cfg.Chat.AutoStartRoom); room != nil {
			if _, err := msgStore.Load(ctx, room.ID); err != nil {
				log.WithError(err).WithField("room", room.ID).Warn("Failed to load room log")
				fmt.Println(localizer.Default(i18n.MsgLoadFailed, nil))
			}
			sched.SetRoom(room, rosterSvc.Members(room))
			if err := sched.Enable(ctx); err != nil {
				log.WithError(err).Error("Failed to start auto-chat")
			}
		} else {
			log.WithField("room", cfg.Chat.AutoStartRoom).Warn("Auto-start room not found")
		}
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Console loop
	go runConsole(ctx, consoleDeps{
		roster:    rosterSvc,
		store:     msgStore,
		sched:     sched,
		session:   session,
		settings:  settingsSvc,
		localizer: localizer,
		log:       log,
	})

	// Start periodic tasks
	go startPeriodicTasks(ctx, msgStore, metrics, log)

	// Wait for shutdown signal
	<-sigChan
	log.Info("Shutdown signal received")

	sched.Disable(ctx)

	// Cancel context to stop all goroutines
	cancel()

	// Give in-flight persistence time to finish
	time.Sleep(2 * time.Second)

	log.Info("Engine stopped")
}

// findRoom resolves a room by id first, then by name.
func findRoom(rosterSvc *roster.Roster, key string) *models.Room {
	if room := rosterSvc.RoomByID(key); room != nil {
		return room
	}
	for _, room := range rosterSvc.Rooms() {
		if room.Name == key {
			return room
		}
	}
	return nil
}

// transcriptHandler renders a room's log as an HTML fragment.
func transcriptHandler(rosterSvc *roster.Roster, msgStore *store.MessageStore, log *logrus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["room"]
		room := rosterSvc.RoomByID(roomID)
		if room == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(markdown.RenderTranscript(room, msgStore.Messages(room.ID)))); err != nil {
			log.WithError(err).Debug("Transcript write failed")
		}
	})
}

// startPeriodicTasks starts periodic background tasks
func startPeriodicTasks(ctx context.Context, msgStore *store.MessageStore, metrics *middleware.Metrics, log *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record := msgStore.Snapshot()
			metrics.SetActiveRooms(float64(len(record.Messages)))
		}
	}
}

type consoleDeps struct {
	roster    *roster.Roster
	store     *store.MessageStore
	sched     *scheduler.Scheduler
	session   *chat.Session
	settings  *settings.Service
	localizer *i18n.Localizer
	log       *logrus.Logger
}

// runConsole reads commands from stdin. Plain text goes to the active
// room as a user message.
func runConsole(ctx context.Context, deps consoleDeps) {
	var activeRoom *models.Room

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if err := deps.sched.UserMessage(ctx, line); err != nil {
				fmt.Println("!", err)
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/contacts":
			for _, c := range deps.roster.Contacts() {
				fmt.Printf("%s  %s (%s)\n", c.ID, c.Name, c.Model)
			}
		case "/rooms":
			for _, room := range deps.roster.Rooms() {
				fmt.Printf("%s  %s (%d members)\n", room.ID, room.Name, len(room.Members))
			}
		case "/contact":
			if len(fields) < 4 {
				fmt.Println("usage: /contact <name> <endpoint> <model> [personality...]")
				continue
			}
			agent := &models.Agent{
				Name:        fields[1],
				Endpoint:    fields[2],
				Model:       fields[3],
				Personality: strings.Join(fields[4:], " "),
				APIKey:      os.Getenv("PARLEY_API_KEY"),
			}
			added, err := deps.roster.AddContact(agent)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			fmt.Println("added", added.ID)
		case "/room":
			if len(fields) < 3 {
				fmt.Println("usage: /room <name> <contactID>...")
				continue
			}
			room, err := deps.roster.CreateRoom(fields[1], "", fields[2:])
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			fmt.Println("created", room.ID)
		case "/use":
			if len(fields) != 2 {
				fmt.Println("usage: /use <roomID>")
				continue
			}
			room := findRoom(deps.roster, fields[1])
			if room == nil {
				fmt.Println("! no such room")
				continue
			}
			if _, err := deps.store.Load(ctx, room.ID); err != nil {
				deps.log.WithError(err).WithField("room", room.ID).Warn("Failed to load room log")
				fmt.Println(deps.localizer.Default(i18n.MsgLoadFailed, nil))
			}
			deps.sched.SetRoom(room, deps.roster.Members(room))
			activeRoom = room
			fmt.Println("using", room.Name)
		case "/auto":
			if err := deps.sched.Toggle(ctx); err != nil {
				fmt.Println("!", err)
			}
		case "/intervals":
			if len(fields) != 3 {
				fmt.Println("usage: /intervals <min> <max>  (e.g. /intervals 3s 8s)")
				continue
			}
			min, err1 := time.ParseDuration(fields[1])
			max, err2 := time.ParseDuration(fields[2])
			if err1 != nil || err2 != nil {
				fmt.Println("! bad duration")
				continue
			}
			current := deps.settings.Current()
			current.MinInterval = min
			current.MaxInterval = max
			deps.settings.Update(current)
		case "/msg":
			if len(fields) < 3 {
				fmt.Println("usage: /msg <contactID> <text>")
				continue
			}
			contact := deps.roster.ContactByID(fields[1])
			if contact == nil {
				fmt.Println("! no such contact")
				continue
			}
			deps.session.Open(contact)
			reply, err := deps.session.Send(ctx, contact, strings.Join(fields[2:], " "))
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			if reply != nil {
				fmt.Printf("%s: %s\n", reply.Author, reply.Text)
			}
		case "/clear":
			if activeRoom == nil {
				fmt.Println("! no room selected")
				continue
			}
			deps.store.Clear(ctx, activeRoom.ID)
			fmt.Println(deps.localizer.Default(i18n.MsgHistoryCleared, nil))
		default:
			fmt.Println("commands: /contacts /rooms /contact /room /use /auto /intervals /msg /clear")
		}
	}
}

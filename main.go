package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dice-derby/cogs"
	"dice-derby/config"
	"dice-derby/games/dice_derby"
	"dice-derby/jobs"
	"dice-derby/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warnf("Unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// storage is everything the bot persists to
type storage struct {
	store  dice_derby.Store
	cache  *utils.CachedStore
	audit  utils.MultiAudit
	reader utils.AuditReader
	redis  *redis.Client
}

func (st *storage) Close() {
	if st.redis != nil {
		if err := st.redis.Close(); err != nil {
			log.WithError(err).Warn("Failed to close redis client")
		}
	}
	utils.CloseDatabase()
}

func setupStorage(ctx context.Context, cfg *config.Config) *storage {
	st := &storage{audit: utils.MultiAudit{utils.LogAudit{}}}

	if cfg.DatabaseURL != "" {
		if err := utils.SetupDatabase(ctx, cfg.DatabaseURL); err != nil {
			log.WithError(err).Error("Database setup failed, falling back to in-memory store")
		} else {
			log.Info("Database connected successfully")
			st.cache = utils.NewCachedStore(utils.NewPostgresStore(utils.DB, cfg.StartingTokens), cfg.StatsCacheTTL)
			st.store = st.cache
			pgAudit := utils.NewPostgresAudit(utils.DB)
			st.audit = append(st.audit, pgAudit)
			st.reader = pgAudit
		}
	}
	if st.store == nil {
		log.Warn("Running on the in-memory store; balances and stats are lost on restart")
		st.store = utils.NewMemoryStore(cfg.StartingTokens)
		memAudit := utils.NewMemoryAudit()
		st.audit = append(st.audit, memAudit)
		st.reader = memAudit
	}

	if cfg.RedisAddr != "" {
		client, err := utils.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Error("Redis unavailable, audit records stay local")
		} else {
			redisAudit := utils.NewRedisAudit(client, cfg.AuditTTL)
			st.redis = client
			st.audit = append(st.audit, redisAudit)
			st.reader = redisAudit
		}
	}
	return st
}

// commandHandler is satisfied by every cog
type commandHandler interface {
	Commands() []*discordgo.ApplicationCommand
	HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate)
}

// router maps slash commands and buttons onto cogs
type router struct {
	guildID  string
	derby    *cogs.Derby
	handlers map[string]commandHandler
	commands []*discordgo.ApplicationCommand
}

func newRouter(guildID string, derby *cogs.Derby, rest ...commandHandler) *router {
	r := &router{guildID: guildID, derby: derby, handlers: make(map[string]commandHandler)}
	for _, h := range append([]commandHandler{derby}, rest...) {
		for _, cmd := range h.Commands() {
			r.handlers[cmd.Name] = h
			r.commands = append(r.commands, cmd)
		}
	}
	return r
}

func (r *router) onReady(status *botStatus) func(*discordgo.Session, *discordgo.Ready) {
	return func(s *discordgo.Session, event *discordgo.Ready) {
		log.WithFields(log.Fields{"user": event.User.Username, "id": event.User.ID}).Info("Discord bot logged in")
		status.Set("online")

		if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
			Activities: []*discordgo.Activity{{Name: "the dice derby", Type: discordgo.ActivityTypeWatching}},
			Status:     "online",
		}); err != nil {
			log.WithError(err).Warn("Failed to update status")
		}

		created, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, r.guildID, r.commands)
		if err != nil {
			log.WithError(err).Error("Failed to register slash commands")
			return
		}
		log.WithFields(log.Fields{"count": len(created), "guild_id": r.guildID}).Info("Registered slash commands")
	}
}

func (r *router) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer cogs.Recover(i)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if h, ok := r.handlers[i.ApplicationCommandData().Name]; ok {
			h.HandleCommand(s, i)
		}
	case discordgo.InteractionMessageComponent:
		if strings.HasPrefix(i.MessageComponentData().CustomID, utils.PartyButtonPrefix) {
			r.derby.HandleComponent(s, i)
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := &botStatus{}
	st := setupStorage(ctx, cfg)
	defer st.Close()

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	if cfg.EconomyChannelID == "" {
		log.Warn("ECONOMY_CHANNEL_ID not set, point payouts will fail and be logged")
	}
	freeze := &dice_derby.Freeze{}
	freeze.Set(cfg.PayoutsFrozen)
	dispatcher := dice_derby.NewDispatcher(
		utils.NewEconomyClient(session, cfg.EconomyChannelID, cfg.EconomyCommand),
		freeze,
		cfg.PayoutDelay,
	)

	messenger := cogs.NewDiscordMessenger(session, cfg.MessageEditsPerSec)
	go messenger.LogMetrics(ctx, 10*time.Minute)

	engine, err := dice_derby.NewEngine(dice_derby.Options{
		Settings:  cfg.RaceSettings(),
		Store:     st.store,
		Messenger: messenger,
		Audit:     st.audit,
		Payouts:   dispatcher,
		Freeze:    freeze,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create race engine")
	}

	scheduler, err := jobs.NewScheduler(engine, cfg.SeasonResetCron, cfg.SeasonTimezone)
	if err != nil {
		log.WithError(err).Fatal("Failed to create scheduler")
	}
	if st.cache != nil {
		scheduler.AddSweeper("stats_cache", st.cache.Cleanup)
	}
	if err := scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start scheduler")
	}

	r := newRouter(cfg.GuildID,
		cogs.NewDerby(engine, cfg.MinPartyEntrants),
		cogs.NewProfile(engine),
		cogs.NewAdmin(engine, dispatcher, func() string {
			return scheduler.NextReset().Format(time.RFC1123)
		}),
	)
	session.AddHandler(r.onReady(status))
	session.AddHandler(r.onInteractionCreate)

	app := newHealthServer(engine, st.reader, status)
	go func() {
		log.WithField("port", cfg.Port).Info("Health server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("Health server error")
		}
	}()

	if err := session.Open(); err != nil {
		status.Set("connection_failed")
		log.WithError(err).Fatal("Failed to open Discord connection")
	}

	log.Info("Bot is now running. Press CTRL+C to exit.")
	status.Set("running")
	<-ctx.Done()

	log.Info("Gracefully shutting down...")
	status.Set("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := engine.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Races did not finish before shutdown")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Payout queues were not drained")
	}
	scheduler.Stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("Health server shutdown failed")
	}
	if err := session.Close(); err != nil {
		log.WithError(err).Warn("Failed to close Discord session")
	}
}

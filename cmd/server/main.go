package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/threadline/dialoguecore/internal/config"
	"github.com/threadline/dialoguecore/internal/ctxbuild"
	"github.com/threadline/dialoguecore/internal/data/db"
	"github.com/threadline/dialoguecore/internal/data/repos"
	httpapi "github.com/threadline/dialoguecore/internal/http"
	"github.com/threadline/dialoguecore/internal/http/handlers"
	"github.com/threadline/dialoguecore/internal/introspection"
	"github.com/threadline/dialoguecore/internal/llm"
	llmmock "github.com/threadline/dialoguecore/internal/llm/mock"
	"github.com/threadline/dialoguecore/internal/media"
	"github.com/threadline/dialoguecore/internal/mixer"
	"github.com/threadline/dialoguecore/internal/notify"
	"github.com/threadline/dialoguecore/internal/orchestrator"
	"github.com/threadline/dialoguecore/internal/parser"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
	"github.com/threadline/dialoguecore/internal/platform/tracing"
	"github.com/threadline/dialoguecore/internal/session"
	"github.com/threadline/dialoguecore/internal/tools"
	"github.com/threadline/dialoguecore/internal/tools/builtin"
	"github.com/threadline/dialoguecore/internal/turn"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("loading configuration")
	cfg := config.Load(log)

	if refined, err := logger.New(logMode, logger.WithLevel(cfg.LogLevel), logger.WithFile(cfg.LogFile)); err != nil {
		log.Warn("failed to apply configured log level/file, keeping bootstrap logger", "error", err)
	} else {
		log = refined
	}

	ctx := context.Background()
	shutdownTracing := tracing.Init(ctx, cfg, log)
	defer shutdownTracing(ctx)

	log.Info("opening database connection", "db_url", cfg.DBURL)
	dbSvc, err := db.Open(cfg, log)
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	if err := dbSvc.AutoMigrate(); err != nil {
		log.Fatal("auto-migration failed", "error", err)
	}
	gdb := dbSvc.DB()

	dialogueRepo := repos.NewDialogueRepo(gdb, log)
	sessionRepo := repos.NewSessionRepo(gdb, log)
	turnRepo := repos.NewTurnRepo(gdb, log)
	messageRepo := repos.NewMessageRepo(gdb, log)
	eventRepo := repos.NewEventLogRepo(gdb, log)
	toolCallRepo := repos.NewToolCallRepo(gdb, log)
	introspectionRepo := repos.NewIntrospectionRepo(gdb, log)
	collabRepo := repos.NewCollaborationRepo(gdb, log)

	hub := notify.NewHub(log)

	mediaStore, err := media.NewStore(cfg.MediaRoot)
	if err != nil {
		log.Fatal("failed to init media store", "error", err)
	}

	imageResolver, imageReady, err := media.NewVisionResolver(log)
	if err != nil || !imageReady {
		log.Warn("vision resolver unavailable, falling back to placeholder captions", "error", err)
		imageResolver = media.NewFallbackImageResolver()
	}
	audioResolver, audioReady, err := media.NewSpeechResolver(log)
	if err != nil || !audioReady {
		log.Warn("speech resolver unavailable, falling back to placeholder transcripts", "error", err)
		audioResolver = media.NewFallbackAudioResolver()
	}

	var llmClient llm.Client
	switch cfg.LLMProvider {
	default:
		log.Info("using deterministic mock LLM engine", "provider", cfg.LLMProvider)
		llmClient = llmmock.New()
	}

	toolRegistry := tools.NewRegistry()
	builtin.RegisterAll(toolRegistry)

	var toolLock tools.InvocationLock
	if cfg.ToolLockRedisURL != "" {
		toolLock, err = tools.NewRedisLock(cfg.ToolLockRedisURL, log)
		if err != nil {
			log.Warn("redis tool lock unavailable, falling back to in-memory lock", "error", err)
			toolLock = tools.NewMemoryLock()
		}
	} else {
		toolLock = tools.NewMemoryLock()
	}
	toolInvoker := tools.NewInvoker(toolRegistry, toolCallRepo, toolLock, cfg.ToolTimeout(), log)

	inputParser := parser.New(messageRepo, imageResolver, audioResolver, log)
	contextBuilder := ctxbuild.New(messageRepo, log)
	responseMixer := mixer.New(cfg.MaxContextLength)
	sessionMgr := session.New(sessionRepo, turnRepo, cfg.SessionIdleThreshold(), log)
	turnMgr := turn.New(turnRepo, cfg.ResponseWindow(), log)
	turnMgr.StartSweeper(ctx, gdb, 30*time.Second)

	core := orchestrator.New(orchestrator.Deps{
		DB:        gdb,
		Dialogues: dialogueRepo,
		Messages:  messageRepo,
		Events:    eventRepo,
		Collab:    collabRepo,
		Parser:    inputParser,
		Sessions:  sessionMgr,
		Turns:     turnMgr,
		Context:   contextBuilder,
		LLM:       llmClient,
		ToolInv:   toolInvoker,
		Mixer:     responseMixer,
		Hub:       hub,
		Personas:  []ctxbuild.Persona{{Content: "You are a helpful assistant."}},
		Log:       log,

		PipelineDeadline: cfg.PipelineDeadline(),
	})

	introspectionEngine := introspection.New(introspectionRepo, messageRepo, sessionMgr, turnMgr, toolInvoker, log)

	h := httpapi.Handlers{
		Input:         handlers.NewInputHandler(core),
		Dialogue:      handlers.NewDialogueHandler(core, dialogueRepo, gdb),
		Query:         handlers.NewQueryHandler(dialogueRepo, sessionRepo, turnRepo, messageRepo, core, gdb),
		Tools:         handlers.NewToolsHandler(toolRegistry, toolInvoker, gdb),
		Notify:        handlers.NewNotifyHandler(hub),
		Media:         handlers.NewMediaHandler(mediaStore),
		Introspection: handlers.NewIntrospectionHandler(introspectionEngine, dialogueRepo, gdb),
	}

	router := httpapi.NewRouter(h, hub, cfg.CORSOrigins, log)

	addr := cfg.Host + ":" + cfg.Port
	log.Info("server listening", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("server failed", "error", err)
	}
}

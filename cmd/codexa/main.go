package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	cmw "github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/codexa/admin"
	"github.com/hazyhaar/codexa/dbopen"
	"github.com/hazyhaar/codexa/httpapi"
	"github.com/hazyhaar/codexa/idgen"
	"github.com/hazyhaar/codexa/ingest"
	"github.com/hazyhaar/codexa/observability"
)

func main() {
	cfgPath := "codexa.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// --- Observability DB (separate from the index to avoid write contention) ---
	obsDB, err := dbopen.Open(cfg.ObsDBPath, dbopen.WithMkdirAll(), dbopen.WithBusyTimeout(5000))
	if err != nil {
		log.Fatalf("observability db: %v", err)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		log.Fatalf("observability schema: %v", err)
	}

	// --- Observability components ---
	auditLogger := observability.NewAuditLogger(obsDB, 1000,
		observability.WithAuditIDGenerator(idgen.Prefixed("aud_", idgen.Default)),
	)
	metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second)
	events := observability.NewEventLogger(obsDB,
		observability.WithEventIDGenerator(idgen.Prefixed("evt_", idgen.Default)),
	)

	// Heartbeat: write liveness + runtime metrics every 15s.
	heartbeat := observability.NewHeartbeatWriter(obsDB, observability.ServiceName, 15*time.Second)
	heartbeat.Start(context.Background())
	defer heartbeat.Stop()

	// --- Ingester ---
	ing, err := ingest.NewIngester(cfg,
		ingest.WithAudit(auditLogger),
		ingest.WithMetrics(metrics),
		ingest.WithEvents(events),
		ingest.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("init ingester: %v", err)
	}
	defer ing.Close()

	adm := admin.New(ing, admin.NewGate(cfg.AdminPassHash))
	svc := httpapi.New(ing, adm, logger, obsDB)

	r := chi.NewRouter()
	r.Use(cmw.RealIP)
	r.Use(cmw.Recoverer)
	svc.RegisterHTTP(r)

	if cfg.MCPEnabled {
		srv := mcp.NewServer(&mcp.Implementation{Name: "codexa", Version: "0.1.0"}, nil)
		ing.RegisterMCP(srv)
		go serveMCP(srv)
	}

	log.Printf("codexa listening on %s", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, r); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// loadConfig falls back to defaults when no config file exists, so a bare
// `codexa` run works out of the box.
func loadConfig(path string) (*ingest.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := ingest.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return ingest.LoadConfig(path)
}

// serveMCP runs the MCP server over stdio until the client disconnects.
func serveMCP(srv *mcp.Server) {
	if err := srv.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Printf("mcp server: %v", err)
	}
}

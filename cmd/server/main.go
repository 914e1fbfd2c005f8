package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "creton.game/internal/persistence/log"
	"creton.game/internal/session"
	"creton.game/internal/sim/tuning"
	"creton.game/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		backend    = flag.String("ledger", "sqlite", "ledger backend: sqlite or postgres")
		dsn        = flag.String("ledger_dsn", "", "postgres dsn (or set CRETON_LEDGER_DSN)")
		syncEvery  = flag.Duration("sync_every", 15*time.Second, "how often live sessions push points to the ledger")
		noJournal  = flag.Bool("disable_journal", false, "do not journal store transitions")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	logger.Printf("tuning digest=%s", tune.Digest())

	ledger, err := openLedger(*backend, *dsn, *dataDir)
	if err != nil {
		logger.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	mirror, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}

	var journal *persistlog.JSONLZstdWriter
	if !*noJournal {
		journal = persistlog.NewJournal(*dataDir)
		if mirror != nil {
			journal.OnSegmentClosed(mirror.Enqueue)
		}
	}

	mgr := session.NewManager(session.Config{
		Tuning:  tune,
		Ledger:  ledger,
		Journal: journal,
		Logger:  logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	go mgr.RunSync(ctx, *syncEvery)
	go mgr.RunDailyReset(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP creton_live_sessions Sessions currently held in memory.\n")
		fmt.Fprintf(rw, "# TYPE creton_live_sessions gauge\n")
		fmt.Fprintf(rw, "creton_live_sessions %d\n", len(mgr.Sessions()))
		if mirror != nil {
			mirror.WriteMetrics(rw)
		}
	})
	if envBool("CRETON_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/sessions", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			type row struct {
				UserID    string    `json:"user_id"`
				SettledAt time.Time `json:"settled_at"`
				Points    float64   `json:"points"`
				Pending   float64   `json:"unsynchronized_points"`
			}
			out := []row{}
			for _, s := range mgr.Sessions() {
				st := s.Store().State()
				out = append(out, row{UserID: s.UserID, SettledAt: s.SettledAt(), Points: st.Points, Pending: st.UnsynchronizedPoints})
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(out)
		})
		mux.HandleFunc("/admin/v1/sync", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 10*time.Second)
			defer cancel2()
			rw.Header().Set("Content-Type", "application/json")
			if err := mgr.SyncAll(ctx2); err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		})
	} else {
		logger.Printf("admin endpoints disabled (CRETON_ENABLE_ADMIN_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(mgr, tune, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (ledger=%s)", *addr, *backend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel3()
	if err := mgr.Close(ctx3); err != nil {
		logger.Printf("final sync: %v", err)
	}
	if journal != nil {
		_ = journal.Close()
	}
	if mirror != nil {
		mirror.Close()
	}
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"creton.game/internal/persistence/indexdb"
	"creton.game/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "player":
		playerCmd(args)
	case "ledger":
		ledgerCmd(args)
	case "export":
		exportCmd(args)
	case "snapshot":
		snapshotCmd(args)
	case "journal":
		journalCmd(args)
	case "sessions":
		sessionsCmd(args)
	case "sync":
		syncCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <player|ledger|export|snapshot|journal|sessions|sync> [flags]")
}

type ledgerFlags struct {
	dataDir *string
	backend *string
	dsn     *string
}

func addLedgerFlags(fs *flag.FlagSet) ledgerFlags {
	return ledgerFlags{
		dataDir: fs.String("data", "./data", "runtime data directory"),
		backend: fs.String("ledger", "sqlite", "ledger backend: sqlite or postgres"),
		dsn:     fs.String("ledger_dsn", "", "postgres dsn (or set CRETON_LEDGER_DSN)"),
	}
}

func (f ledgerFlags) open() *indexdb.Ledger {
	var (
		l   *indexdb.Ledger
		err error
	)
	switch strings.ToLower(*f.backend) {
	case "postgres", "pg":
		dsn := strings.TrimSpace(*f.dsn)
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("CRETON_LEDGER_DSN"))
		}
		l, err = indexdb.OpenPostgres(dsn)
	default:
		path := filepath.Join(*f.dataDir, "ledger", "ledger.sqlite")
		if _, statErr := os.Stat(path); statErr != nil {
			fmt.Fprintln(os.Stderr, "ledger not found:", path)
			os.Exit(1)
		}
		l, err = indexdb.OpenSQLite(path)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "open ledger:", err)
		os.Exit(1)
	}
	return l
}

func requireUser(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(2)
	}
	return u
}

func playerCmd(args []string) {
	fs := flag.NewFlagSet("player", flag.ExitOnError)
	lf := addLedgerFlags(fs)
	user := fs.String("user", "", "user id")
	_ = fs.Parse(args)
	uid := requireUser(*user)

	l := lf.open()
	defer l.Close()
	p, err := l.LoadPlayer(context.Background(), uid)
	if errors.Is(err, indexdb.ErrNotFound) {
		fmt.Fprintln(os.Stderr, "no saved player:", uid)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "load player:", err)
		os.Exit(1)
	}
	printPlayer(p)
}

func ledgerCmd(args []string) {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	lf := addLedgerFlags(fs)
	user := fs.String("user", "", "user id")
	limit := fs.Int("n", 20, "recent entries to list")
	_ = fs.Parse(args)
	uid := requireUser(*user)

	l := lf.open()
	defer l.Close()
	ctx := context.Background()
	total, err := l.Total(ctx, uid)
	if err != nil {
		fmt.Fprintln(os.Stderr, "total:", err)
		os.Exit(1)
	}
	fmt.Printf("user=%s confirmed=%s\n", uid, humanize.Commaf(total))

	entries, err := l.Entries(ctx, uid, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "entries:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		when := e.RecordedAt
		if t, err := time.Parse(time.RFC3339Nano, e.RecordedAt); err == nil {
			when = humanize.Time(t)
		}
		fmt.Printf("  %s  +%s  %s\n", e.ID, humanize.Commaf(e.Amount), when)
	}
}

// exportCmd copies a saved player out of the ledger into a snapshot file.
func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	lf := addLedgerFlags(fs)
	user := fs.String("user", "", "user id")
	out := fs.String("out", "", "output path (default: <data>/exports/<user>.snap.zst)")
	_ = fs.Parse(args)
	uid := requireUser(*user)

	l := lf.open()
	defer l.Close()
	p, err := l.LoadPlayer(context.Background(), uid)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load player:", err)
		os.Exit(1)
	}
	path := strings.TrimSpace(*out)
	if path == "" {
		path = filepath.Join(*lf.dataDir, "exports", uid+".snap.zst")
	}
	if err := snapshot.WriteFile(path, p); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Println(path)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("file", "", "snapshot file")
	_ = fs.Parse(args)
	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	p, err := snapshot.ReadFile(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printPlayer(p)
}

func printPlayer(p snapshot.PlayerV1) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(p)
	fmt.Fprintf(os.Stderr, "saved %s, %s points, balance %s\n",
		humanize.Time(p.Header.SavedAt), humanize.Commaf(p.State.Points), humanize.Commaf(p.State.PointsBalance))
}

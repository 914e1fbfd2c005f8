package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "creton.game/internal/persistence/log"
)

// journalCmd prints transitions from journal segments, oldest first.
func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	file := fs.String("file", "", "single segment to read (default: every segment under <data>/journal)")
	user := fs.String("user", "", "only this user id")
	rejected := fs.Bool("rejected", false, "only rejected operations")
	_ = fs.Parse(args)

	files, err := journalFiles(*dataDir, *file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(1)
	}
	for _, f := range files {
		err := persistlog.ReadJSONL(f, func(line []byte) error {
			var e persistlog.TransitionEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if *user != "" && e.UserID != *user {
				return nil
			}
			if *rejected && e.Applied {
				return nil
			}
			status := "ok"
			if !e.Applied {
				status = "rejected"
			}
			fmt.Printf("%s #%d %s %s %s points=%.2f balance=%.2f energy=%.0f/%.0f\n",
				e.At.Format("2006-01-02T15:04:05.000Z07:00"), e.Seq, e.UserID, e.Op, status,
				e.State.Points, e.State.PointsBalance, e.State.Energy, e.State.MaxEnergy)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
			os.Exit(1)
		}
	}
}

func journalFiles(dataDir, file string) ([]string, error) {
	if strings.TrimSpace(file) != "" {
		return []string{file}, nil
	}
	dir := filepath.Join(dataDir, "journal")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	// Hour-stamped names sort chronologically.
	sort.Strings(out)
	return out, nil
}

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"creton.game/internal/persistence/indexdb"
	"creton.game/internal/persistence/objstore"
)

func openLedger(backend, dsn, dataDir string) (*indexdb.Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "ledger", "ledger.sqlite"))
	case "postgres", "pg":
		if strings.TrimSpace(dsn) == "" {
			dsn = strings.TrimSpace(os.Getenv("CRETON_LEDGER_DSN"))
		}
		if dsn == "" {
			return nil, fmt.Errorf("-ledger=postgres but no dsn (flag -ledger_dsn or CRETON_LEDGER_DSN)")
		}
		return indexdb.OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", backend)
	}
}

// buildMirror returns nil unless CRETON_MIRROR is set.
func buildMirror(dataDir string, logger *log.Logger) (*objstore.Uploader, error) {
	if !envBool("CRETON_MIRROR", false) {
		return nil, nil
	}
	client, err := objstore.New(objstore.Config{
		Endpoint:        os.Getenv("CRETON_MIRROR_ENDPOINT"),
		Bucket:          os.Getenv("CRETON_MIRROR_BUCKET"),
		Region:          os.Getenv("CRETON_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("CRETON_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("CRETON_MIRROR_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	workers := envInt("CRETON_MIRROR_WORKERS", 2)
	return objstore.NewUploader(client, dataDir, os.Getenv("CRETON_MIRROR_PREFIX"), workers, logger), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

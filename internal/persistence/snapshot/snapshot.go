package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"creton.game/internal/sim/game"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	UserID  string    `json:"user_id"`
	SavedAt time.Time `json:"saved_at"`

	// SettledAt is the instant idle accrual was last applied up to. Zero
	// means SavedAt.
	SettledAt time.Time `json:"settled_at"`
}

// PlayerV1 is a persisted player session.
type PlayerV1 struct {
	Header Header           `json:"header"`
	State  game.PlayerState `json:"state"`
}

func FromState(userID string, st game.PlayerState, savedAt time.Time) PlayerV1 {
	return PlayerV1{
		Header: Header{Version: Version, UserID: userID, SavedAt: savedAt.UTC()},
		State:  st,
	}
}

// AccruedUntil is where idle accrual resumes after hydration.
func (p PlayerV1) AccruedUntil() time.Time {
	if p.Header.SettledAt.IsZero() {
		return p.Header.SavedAt
	}
	return p.Header.SettledAt
}

// Partial returns the hydration input for game.Store.InitializeState.
func (p PlayerV1) Partial() game.Partial {
	return game.PartialOf(p.State)
}

// Encode writes a header line followed by the JSON body, zstd compressed.
func Encode(p PlayerV1) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(b []byte) (PlayerV1, error) {
	return read(bytes.NewReader(b))
}

func write(w io.Writer, p PlayerV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	hb, _ := json.Marshal(p.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(p.State); err != nil {
		_ = enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func read(r io.Reader) (PlayerV1, error) {
	var p PlayerV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return p, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return p, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &p.Header); err != nil {
		return p, fmt.Errorf("header: %w", err)
	}
	if p.Header.Version != Version {
		return p, fmt.Errorf("unsupported snapshot version %d", p.Header.Version)
	}
	if err := json.NewDecoder(br).Decode(&p.State); err != nil {
		return p, fmt.Errorf("json decode: %w", err)
	}
	return p, nil
}

func WriteFile(path string, p PlayerV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := write(f, p); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadFile(path string) (PlayerV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return PlayerV1{}, err
	}
	defer f.Close()
	return read(f)
}

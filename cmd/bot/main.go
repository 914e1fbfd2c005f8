package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"creton.game/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		userID    = flag.String("user", "bot-"+uuid.NewString()[:8], "user id")
		name      = flag.String("name", "bot", "display name")
		interval  = flag.Duration("interval", 200*time.Millisecond, "delay between actions")
		syncEvery = flag.Int("sync_every", 50, "send SYNC after this many accepted clicks (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		UserID:          *userID,
		UserName:        *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	clicks := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}

		var view protocol.StateView
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME user=%s level=%s points=%.0f digest=%s", w.UserID, w.State.GameLevelName, w.State.Points, w.TuningDigest[:12])
			view = w.State
		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err == nil && !a.Accepted {
				logger.Printf("rejected %s: %s", a.AckFor, a.Code)
			}
			continue
		case protocol.TypeState:
			var s protocol.StateMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			view = s.State
		default:
			continue
		}

		action := nextAction(view)
		if action == protocol.ActionClick {
			clicks++
			if *syncEvery > 0 && clicks%*syncEvery == 0 {
				action = protocol.ActionSync
				logger.Printf("sync: points=%.0f pending=%.0f level=%s", view.Points, view.UnsynchronizedPoints, view.GameLevelName)
			}
		}
		if action == "" {
			// Wait for energy to regenerate, then poke the server for fresh state.
			time.Sleep(2 * time.Second)
			action = protocol.ActionSync
		}
		time.Sleep(*interval)

		act := protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			ActID:           uuid.NewString(),
			Action:          action,
		}
		if err := conn.WriteJSON(act); err != nil {
			logger.Printf("send ACT: %v", err)
			return
		}
	}
}

// nextAction buys the cheapest affordable upgrade, otherwise clicks, and
// spends a refill only when energy is gone. Empty means wait.
func nextAction(v protocol.StateView) string {
	best, bestCost := "", 0.0
	for _, u := range []struct {
		action string
		cost   float64
	}{
		{protocol.ActionUpgradeMultitap, v.MultitapUpgradeCost},
		{protocol.ActionUpgradeEnergyLimit, v.EnergyLimitUpgradeCost},
		{protocol.ActionUpgradeMine, v.MineUpgradeCost},
	} {
		if u.cost <= v.PointsBalance && (best == "" || u.cost < bestCost) {
			best, bestCost = u.action, u.cost
		}
	}
	if best != "" {
		return best
	}
	if v.Energy >= v.PointsPerClick {
		return protocol.ActionClick
	}
	if v.EnergyRefillsLeft > 0 {
		return protocol.ActionRefillEnergy
	}
	return ""
}

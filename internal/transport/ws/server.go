package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"creton.game/internal/protocol"
	"creton.game/internal/session"
	"creton.game/internal/sim/progression"
	"creton.game/internal/sim/tuning"
)

type Server struct {
	sessions *session.Manager
	calc     progression.Calculator
	digest   string
	log      *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(m *session.Manager, t tuning.Tuning, logger *log.Logger) *Server {
	s := &Server{
		sessions: m,
		calc:     progression.New(t),
		digest:   t.Digest(),
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(r.Context(), conn)
		if sess == nil {
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.sessions.Release(ctx, sess); err != nil {
				s.logf("release %s: %v", sess.UserID, err)
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		out := make(chan []byte, 16)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			for _, v := range s.handleMessage(ctx, sess, msg) {
				b, err := json.Marshal(v)
				if err != nil {
					continue
				}
				select {
				case out <- b:
				case <-ctx.Done():
				}
			}
		}
	}
}

// handleMessage turns one inbound frame into the ACK and, when the action
// was accepted, the fresh STATE.
func (s *Server) handleMessage(ctx context.Context, sess *session.Session, msg []byte) []any {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAct {
		return []any{nack("", protocol.ErrProtoBadRequest, "expected ACT")}
	}
	var act protocol.ActMsg
	if err := json.Unmarshal(msg, &act); err != nil {
		return []any{nack("", protocol.ErrProtoBadRequest, "malformed ACT")}
	}
	if act.ProtocolVersion != protocol.Version {
		return []any{nack(act.ActID, protocol.ErrProtoBadRequest, "bad protocol_version")}
	}

	sess.SettleNow()
	code, text := s.dispatch(ctx, sess, act)
	if code != "" {
		return []any{nack(act.ActID, code, text), s.stateMsg(sess)}
	}
	return []any{
		protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: act.ActID, Accepted: true},
		s.stateMsg(sess),
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, act protocol.ActMsg) (code, text string) {
	st := sess.Store()
	switch act.Action {
	case protocol.ActionClick:
		if !st.Click() {
			return protocol.ErrNoEnergy, "not enough energy"
		}
	case protocol.ActionUpgradeMultitap:
		if !st.UpgradeMultitap() {
			return protocol.ErrNoBalance, "balance below upgrade cost"
		}
	case protocol.ActionUpgradeEnergyLimit:
		if !st.UpgradeEnergyLimit() {
			return protocol.ErrNoBalance, "balance below upgrade cost"
		}
	case protocol.ActionUpgradeMine:
		if !st.UpgradeMine() {
			return protocol.ErrNoBalance, "balance below upgrade cost"
		}
	case protocol.ActionRefillEnergy:
		if !st.RefillEnergy() {
			return protocol.ErrNoRefills, "no energy refills left today"
		}
	case protocol.ActionSetTonWallet:
		var addr *string
		if act.Address != nil {
			if a := strings.TrimSpace(*act.Address); a != "" {
				addr = &a
			}
		}
		st.SetTonWalletAddress(addr)
	case protocol.ActionSync:
		if err := sess.Sync(ctx); err != nil {
			s.logf("sync %s: %v", sess.UserID, err)
			return protocol.ErrSyncFailed, "ledger unavailable"
		}
	default:
		return protocol.ErrBadRequest, "unknown action"
	}
	return "", ""
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session.Session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return nil
	}
	userID := strings.TrimSpace(hello.UserID)
	if userID == "" {
		closeWith(conn, websocket.ClosePolicyViolation, "missing user_id")
		return nil
	}

	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		s.logf("open %s: %v", userID, err)
		closeWith(conn, websocket.CloseInternalServerErr, "session unavailable")
		return nil
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		UserID:          userID,
		TuningDigest:    s.digest,
		Levels:          Levels(s.calc),
		State:           View(sess.Store().State(), s.calc),
	}
	if err := writeJSON(conn, welcome); err != nil {
		_ = s.sessions.Release(context.Background(), sess)
		return nil
	}
	s.logf("welcome %s (%s)", userID, hello.UserName)
	return sess
}

func (s *Server) stateMsg(sess *session.Session) protocol.StateMsg {
	return protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		State:           View(sess.Store().State(), s.calc),
	}
}

func nack(actID, code, text string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          actID,
		Accepted:        false,
		Code:            code,
		Message:         text,
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

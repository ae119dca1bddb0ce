package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/genautapi/internal/coach"
	"github.com/MrWong99/genautapi/internal/leaderboard"
	"github.com/MrWong99/genautapi/internal/observe"
	"github.com/MrWong99/genautapi/pkg/history"
)

// ── Wire types ───────────────────────────────────────────────────────────────

type chatRequest struct {
	Transcript string `json:"transcript"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Topic      string `json:"topic"`
	Memory     string `json:"memory"`
	Streak     int    `json:"streak"`
	SessionID  string `json:"session_id"`
	Name       string `json:"name"`
}

type chatResponse struct {
	Reply              string `json:"reply"`
	Correction         string `json:"correction"`
	ShouldRepeat       bool   `json:"should_repeat"`
	PronunciationTip   string `json:"pronunciation_tip"`
	Score              int    `json:"score"`
	GrammarScore       int    `json:"grammar_score"`
	PronunciationScore int    `json:"pronunciation_score"`
	XP                 int    `json:"xp"`
	Memory             string `json:"memory"`
	AudioBase64        string `json:"audio_base64"`
	AudioMIME          string `json:"audio_mime"`
	AudioURL           string `json:"audio_url"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type messageResponse struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	MetaData  map[string]any `json:"meta_data"`
	CreatedAt time.Time      `json:"created_at"`
}

type historyResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []messageResponse `json:"messages"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "GenauTapi Backend is LIVE!",
		"status":  "Ready to chat",
	})
}

func (s *Server) handleTopics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, coach.Topics())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.history.CreateSession(r.Context(), clientIP(r))
	if err != nil {
		s.internalError(w, r, "create session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "transcript must not be empty")
		return
	}
	if req.SessionID != "" {
		if _, err := s.history.GetSession(ctx, req.SessionID); err != nil {
			if errors.Is(err, history.ErrNotFound) {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			s.internalError(w, r, "load session", err)
			return
		}
	}

	res := s.coach.RunTurn(ctx, coach.TurnRequest{
		Transcript:     req.Transcript,
		SourceLanguage: req.SourceLang,
		TargetLanguage: req.TargetLang,
		Topic:          req.Topic,
		Memory:         req.Memory,
		Streak:         req.Streak,
	})

	s.afterTurn(ctx, clientIP(r), req, res)

	resp := chatResponse{
		Reply:              res.Reply,
		Correction:         res.Correction,
		ShouldRepeat:       res.ShouldRepeat,
		PronunciationTip:   res.PronunciationTip,
		Score:              res.OverallScore,
		GrammarScore:       res.GrammarScore,
		PronunciationScore: res.PronunciationScore,
		XP:                 res.XP,
		Memory:             res.Memory,
		AudioMIME:          res.Audio.MIMEType,
	}
	if !res.Audio.Empty() {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(res.Audio.Data)
	}
	writeJSON(w, http.StatusOK, resp)
}

// afterTurn persists the exchange and updates the leaderboard concurrently.
// Failures are logged; the learner still gets the reply. The writes outlive
// a client that disconnects mid-way.
func (s *Server) afterTurn(ctx context.Context, ip string, req chatRequest, res coach.Result) {
	ctx = context.WithoutCancel(ctx)
	log := observe.Logger(ctx)

	var g errgroup.Group
	if req.SessionID != "" {
		g.Go(func() error {
			if _, err := s.history.AppendMessage(ctx, req.SessionID, history.RoleUser, req.Transcript, nil); err != nil {
				log.Warn("api: persist user message", "session_id", req.SessionID, "err", err)
				return err
			}
			if _, err := s.history.AppendMessage(ctx, req.SessionID, history.RoleAssistant, res.Reply, assistantMeta(res)); err != nil {
				log.Warn("api: persist assistant message", "session_id", req.SessionID, "err", err)
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		s.board.Update(ctx, ip, res.OverallScore, req.Name)
		return nil
	})
	_ = g.Wait()
}

func assistantMeta(res coach.Result) map[string]any {
	return map[string]any{
		"score":               res.OverallScore,
		"grammar_score":       res.GrammarScore,
		"pronunciation_score": res.PronunciationScore,
		"xp":                  res.XP,
		"correction":          res.Correction,
		"should_repeat":       res.ShouldRepeat,
		"pronunciation_tip":   res.PronunciationTip,
		"memory":              res.Memory,
		"provider":            res.Provider,
		"simulated":           res.Simulated,
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	msgs, err := s.history.GetMessages(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "load history", err)
		return
	}

	out := historyResponse{SessionID: id, Messages: make([]messageResponse, len(msgs))}
	for i, m := range msgs {
		out.Messages[i] = messageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			MetaData:  m.Meta,
			CreatedAt: m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := s.boardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	entries := s.board.Top(limit)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Error("api: "+op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// clientIP returns the first X-Forwarded-For hop, or the host of RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

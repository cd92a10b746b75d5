package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"calagent/app/core/auth"
	"calagent/app/core/speech"
	"calagent/app/core/store"
	"calagent/app/pkg/logger"
	"calagent/app/pkg/types"
)

const (
	sessionCookie = "calagent_session"
	sessionTTL    = 7 * 24 * time.Hour
	stateTTL      = 10 * time.Minute
)

type Config struct {
	Port            int
	BaseURL         string
	SessionSecret   string
	ResponseTimeout time.Duration
}

// Server is the web interaction channel. It serves the chat page, runs the
// Google consent flow, and bridges synchronous HTTP requests onto the
// gateway's asynchronous message handler.
type Server struct {
	cfg         Config
	id          string
	oauth       *auth.OAuth
	tokens      *store.TokenStore
	transcriber speech.Transcriber
	health      func() interface{}

	httpServer *http.Server

	mu      sync.RWMutex
	handler func(types.Message)
	pending map[string]chan types.Message
	states  map[string]stateEntry
}

// stateEntry ties an OAuth state nonce to the optional user id that started
// the flow from another channel, so tokens land under that id.
type stateEntry struct {
	linkUser string
	created  time.Time
}

func NewServer(cfg Config, oauth *auth.OAuth, tokens *store.TokenStore, transcriber speech.Transcriber, health func() interface{}) *Server {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 60 * time.Second
	}
	return &Server{
		cfg:         cfg,
		id:          "web",
		oauth:       oauth,
		tokens:      tokens,
		transcriber: transcriber,
		health:      health,
		pending:     make(map[string]chan types.Message),
		states:      make(map[string]stateEntry),
	}
}

func (s *Server) ID() string {
	return s.id
}

func (s *Server) Start(ctx context.Context, handler func(types.Message)) error {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Web] listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/login", s.handleLogin)
	r.Get("/oauth2callback", s.handleCallback)
	r.Post("/chat", s.handleChat)
	r.Post("/transcribe", s.handleTranscribe)
	r.Get("/healthz", s.handleHealth)
	return r
}

// Send resolves the pending /chat request that is waiting on this reply.
func (s *Server) Send(_ context.Context, msg types.Message) error {
	s.mu.RLock()
	ch, ok := s.pending[msg.RequestID]
	s.mu.RUnlock()
	if !ok {
		logger.Info("[Web] no pending request for reply %s, dropping", msg.RequestID)
		return nil
	}

	select {
	case ch <- msg:
	default:
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, chatPage)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	linkUser := strings.TrimSpace(r.URL.Query().Get("u"))

	s.mu.Lock()
	s.pruneStatesLocked()
	s.states[state] = stateEntry{linkUser: linkUser, created: time.Now()}
	s.mu.Unlock()

	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	s.mu.Lock()
	entry, ok := s.states[state]
	delete(s.states, state)
	s.mu.Unlock()
	if !ok || time.Since(entry.created) > stateTTL {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		logger.Error("[Web] code exchange failed: %v", err)
		http.Error(w, "authorization failed", http.StatusBadGateway)
		return
	}

	googleID, email, err := s.oauth.UserInfo(r.Context(), token)
	if err != nil {
		logger.Error("[Web] userinfo lookup failed: %v", err)
		http.Error(w, "authorization failed", http.StatusBadGateway)
		return
	}

	userID := entry.linkUser
	if userID == "" {
		userID = googleID
	}

	if err := s.tokens.Save(r.Context(), userID, email, token); err != nil {
		logger.Error("[Web] token save failed: %v", err)
		http.Error(w, "could not persist credentials", http.StatusInternalServerError)
		return
	}
	logger.Info("[Web] linked Google account %s to user %s", email, userID)

	if entry.linkUser != "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, linkedPage)
		return
	}

	if err := s.setSessionCookie(w, userID, email); err != nil {
		logger.Error("[Web] session cookie failed: %v", err)
		http.Error(w, "could not start session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in", "login": "/login"})
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "agent not ready"})
		return
	}

	requestID := uuid.NewString()
	replyCh := make(chan types.Message, 1)
	s.mu.Lock()
	s.pending[requestID] = replyCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	handler(types.Message{
		ID:        requestID,
		Content:   strings.TrimSpace(req.Text),
		Role:      types.MessageRoleUser,
		ChannelID: s.id,
		UserID:    userID,
		RequestID: requestID,
	})

	select {
	case reply := <-replyCh:
		writeJSON(w, http.StatusOK, map[string]string{"reply": reply.Content})
	case <-time.After(s.cfg.ResponseTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "agent timed out"})
	case <-r.Context().Done():
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionUser(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	if s.transcriber == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "transcription not configured"})
		return
	}

	if err := r.ParseMultipartForm(20 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file is required"})
		return
	}
	defer file.Close()

	text := s.transcriber.Transcribe(r.Context(), file, header.Filename)
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, s.health())
}

func (s *Server) setSessionCookie(w http.ResponseWriter, userID, email string) error {
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   time.Now().Add(sessionTTL).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SessionSecret))
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(s.cfg.BaseURL, "https://"),
	})
	return nil
}

func (s *Server) sessionUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}

	token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.SessionSecret), nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return "", false
	}
	return sub, true
}

// pruneStatesLocked drops expired consent states. Caller holds s.mu.
func (s *Server) pruneStatesLocked() {
	for k, v := range s.states {
		if time.Since(v.created) > stateTTL {
			delete(s.states, k)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package api exposes the lahstats HTTP surface: session lifecycle, chunk
// uploads, speaker claiming and result retrieval.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wagmirep/lahstats/internal/claim"
	"github.com/wagmirep/lahstats/internal/lexicon"
	"github.com/wagmirep/lahstats/internal/observe"
	"github.com/wagmirep/lahstats/internal/queue"
	"github.com/wagmirep/lahstats/internal/session"
	"github.com/wagmirep/lahstats/internal/store"
	"github.com/wagmirep/lahstats/pkg/audio"
	"github.com/wagmirep/lahstats/pkg/blob"
	"github.com/wagmirep/lahstats/pkg/provider/transcribe"
)

// maxChunkBytes bounds a single uploaded chunk body.
const maxChunkBytes = 32 << 20

// defaultChunkTranscribeTimeout bounds the opportunistic background
// transcription of an uploaded chunk.
const defaultChunkTranscribeTimeout = 2 * time.Minute

// Store is the subset of the session store the HTTP layer needs.
type Store interface {
	CreateSession(ctx context.Context, groupID, createdBy string) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	UpdateStatus(ctx context.Context, id string, from, to session.Status) error
	AddChunk(ctx context.Context, c *store.Chunk) error
	RemoveChunk(ctx context.Context, sessionID string, sequence int) error
	UpsertChunkTranscript(ctx context.Context, ct *store.ChunkTranscript) error
	GetSpeaker(ctx context.Context, id string) (*store.Speaker, error)
	ListSpeakers(ctx context.Context, sessionID string) ([]*store.Speaker, error)
}

// Claims handles speaker attribution.
type Claims interface {
	Claim(ctx context.Context, req claim.Request) (completed bool, err error)
	Results(ctx context.Context, sessionID string) (*claim.Results, error)
}

// JobQueue is the subset of the job queue the HTTP layer needs.
type JobQueue interface {
	Push(ctx context.Context, sessionID string) error
	DeadLetters(ctx context.Context) ([]queue.DeadLetter, error)
}

// Server serves the lahstats HTTP API.
type Server struct {
	store    Store
	blobs    blob.Store
	jobs     JobQueue
	claims   Claims
	identity Identity
	metrics  *observe.Metrics

	// transcriber and lex enable opportunistic per-chunk transcription
	// during upload. Nil transcriber disables it.
	transcriber transcribe.Provider
	lex         *lexicon.Engine

	chunkTimeout time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithIdentity overrides how the caller is resolved from a request.
func WithIdentity(id Identity) Option {
	return func(s *Server) { s.identity = id }
}

// WithChunkTranscription enables background transcription of uploaded chunks
// so their word counts can be reused by the processing pipeline.
func WithChunkTranscription(tr transcribe.Provider, eng *lexicon.Engine) Option {
	return func(s *Server) {
		s.transcriber = tr
		s.lex = eng
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server backed by the given store, blob store, job queue and
// claim engine.
func New(st Store, blobs blob.Store, jobs JobQueue, claims Claims, opts ...Option) *Server {
	s := &Server{
		store:        st,
		blobs:        blobs,
		jobs:         jobs,
		claims:       claims,
		identity:     HeaderIdentity{},
		chunkTimeout: defaultChunkTranscribeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.lex == nil {
		s.lex = lexicon.Default()
	}
	return s
}

// Register mounts all API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/chunks", s.handleUploadChunk)
	mux.HandleFunc("POST /sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("GET /sessions/{id}/speakers", s.handleListSpeakers)
	mux.HandleFunc("GET /sessions/{id}/speakers/{speaker}/sample", s.handleSpeakerSample)
	mux.HandleFunc("POST /sessions/{id}/speakers/{speaker}/claim", s.handleClaim)
	mux.HandleFunc("GET /sessions/{id}/results", s.handleResults)
	mux.HandleFunc("GET /admin/dead-letters", s.handleDeadLetters)
}

type sessionResponse struct {
	ID           string `json:"id"`
	GroupID      string `json:"group_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`
}

func sessionJSON(sess *store.Session) sessionResponse {
	return sessionResponse{
		ID:           sess.ID,
		GroupID:      sess.GroupID,
		Status:       string(sess.Status),
		Progress:     sess.Progress,
		ErrorMessage: sess.ErrorMessage,
		DurationMS:   sess.Duration.Milliseconds(),
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		GroupID string `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	sess, err := s.store.CreateSession(r.Context(), req.GroupID, caller)
	if err != nil {
		s.internalError(w, "create session", err)
		return
	}
	slog.Info("session created", "session_id", sess.ID, "group_id", sess.GroupID, "created_by", caller)
	writeJSON(w, http.StatusCreated, sessionJSON(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Status != session.StatusRecording {
		writeError(w, http.StatusConflict, fmt.Sprintf("session is %s; chunks can only be uploaded while recording", sess.Status))
		return
	}
	seq, err := strconv.Atoi(r.URL.Query().Get("sequence"))
	if err != nil || seq < 0 {
		writeError(w, http.StatusBadRequest, "sequence query parameter must be a non-negative integer")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "chunk body too large")
		return
	}
	pcm, format, err := audio.DecodeWAV(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "body is not a valid WAV file")
		return
	}
	duration := audio.Duration(pcm, format)

	// Insert the row first so the sequence number is reserved before any
	// bytes land in the blob store. A duplicate upload is rejected here and
	// never touches the already-stored audio, which the cached chunk
	// transcript may describe.
	ref := blob.ChunkRef(sess.ID, seq)
	chunk := &store.Chunk{
		SessionID: sess.ID,
		Sequence:  seq,
		BlobRef:   ref,
		SizeBytes: int64(len(body)),
		Duration:  duration,
	}
	if err := s.store.AddChunk(r.Context(), chunk); err != nil {
		if errors.Is(err, store.ErrDuplicateChunk) {
			writeError(w, http.StatusConflict, fmt.Sprintf("chunk %d already uploaded", seq))
			return
		}
		s.internalError(w, "record chunk", err)
		return
	}
	if err := s.blobs.Put(r.Context(), ref, body); err != nil {
		// Release the sequence number so the client can retry the upload.
		if rmErr := s.store.RemoveChunk(r.Context(), sess.ID, seq); rmErr != nil {
			slog.Error("api: release chunk row after blob write failure",
				"session_id", sess.ID, "sequence", seq, "err", rmErr)
		}
		s.internalError(w, "store chunk blob", err)
		return
	}
	s.metrics.ChunksUploaded.Add(r.Context(), 1)

	if s.transcriber != nil {
		go s.transcribeChunk(sess.ID, seq, body)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"sequence":    seq,
		"duration_ms": duration.Milliseconds(),
	})
}

// transcribeChunk transcribes an uploaded chunk in the background and caches
// the corrected text and word counts for the processing pipeline. Failures
// are logged and dropped; the pipeline re-transcribes on cache miss.
func (s *Server) transcribeChunk(sessionID string, seq int, wav []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.chunkTimeout)
	defer cancel()

	text, err := s.transcriber.Transcribe(ctx, wav)
	if err != nil {
		slog.Warn("chunk transcription failed", "session_id", sessionID, "sequence", seq, "err", err)
		return
	}
	corrected, counts := s.lex.Process(text)
	ct := &store.ChunkTranscript{
		SessionID:     sessionID,
		Sequence:      seq,
		RawText:       text,
		CorrectedText: corrected,
		WordCounts:    counts,
	}
	if err := s.store.UpsertChunkTranscript(ctx, ct); err != nil {
		slog.Warn("chunk transcript cache write failed", "session_id", sessionID, "sequence", seq, "err", err)
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.UpdateStatus(r.Context(), id, session.StatusRecording, session.StatusProcessing)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "session is not recording")
		return
	case err != nil:
		s.internalError(w, "end session", err)
		return
	}
	if err := s.jobs.Push(r.Context(), id); err != nil {
		// The session is already in processing; without a job it will sit
		// there until requeued, so surface the failure loudly.
		s.internalError(w, "enqueue processing job", err)
		return
	}
	slog.Info("session queued for processing", "session_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(session.StatusProcessing)})
}

type speakerResponse struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	WordCounts   map[string]int `json:"word_counts"`
	SegmentCount int            `json:"segment_count"`
	DurationMS   int64          `json:"duration_ms"`
	HasSample    bool           `json:"has_sample"`
	ClaimType    string         `json:"claim_type,omitempty"`
	ClaimedBy    string         `json:"claimed_by,omitempty"`
	GuestName    string         `json:"guest_name,omitempty"`
}

func (s *Server) handleListSpeakers(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	speakers, err := s.store.ListSpeakers(r.Context(), sess.ID)
	if err != nil {
		s.internalError(w, "list speakers", err)
		return
	}
	out := make([]speakerResponse, 0, len(speakers))
	for _, sp := range speakers {
		out = append(out, speakerResponse{
			ID:           sp.ID,
			Label:        sp.Label,
			WordCounts:   sp.WordCounts,
			SegmentCount: sp.SegmentCount,
			DurationMS:   sp.Duration.Milliseconds(),
			HasSample:    sp.SampleRef != "",
			ClaimType:    string(sp.ClaimType),
			ClaimedBy:    sp.ClaimedBy,
			GuestName:    sp.GuestName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"speakers": out})
}

func (s *Server) handleSpeakerSample(w http.ResponseWriter, r *http.Request) {
	sp, err := s.store.GetSpeaker(r.Context(), r.PathValue("speaker"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "speaker not found")
			return
		}
		s.internalError(w, "get speaker", err)
		return
	}
	if sp.SessionID != r.PathValue("id") {
		writeError(w, http.StatusNotFound, "speaker not found")
		return
	}
	if sp.SampleRef == "" {
		writeError(w, http.StatusNotFound, "no sample available for this speaker")
		return
	}
	wav, err := s.blobs.Get(r.Context(), sp.SampleRef)
	if err != nil {
		s.internalError(w, "fetch sample", err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		ClaimType    string `json:"claim_type"`
		TargetUserID string `json:"target_user_id"`
		GuestName    string `json:"guest_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	completed, err := s.claims.Claim(r.Context(), claim.Request{
		SessionID:    r.PathValue("id"),
		SpeakerID:    r.PathValue("speaker"),
		CallerID:     caller,
		Type:         store.ClaimType(req.ClaimType),
		TargetUserID: req.TargetUserID,
		GuestName:    req.GuestName,
	})
	if err != nil {
		s.metrics.RecordClaim(r.Context(), req.ClaimType, "rejected")
		switch {
		case errors.Is(err, claim.ErrSpeakerNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, claim.ErrAlreadyClaimed), errors.Is(err, claim.ErrSessionNotReady):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, claim.ErrNotGroupMember):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, claim.ErrInvalidGuestName), errors.Is(err, claim.ErrInvalidClaimType):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, "claim speaker", err)
		}
		return
	}
	s.metrics.RecordClaim(r.Context(), req.ClaimType, "ok")
	slog.Info("speaker claimed",
		"session_id", r.PathValue("id"),
		"speaker_id", r.PathValue("speaker"),
		"claim_type", req.ClaimType,
		"session_completed", completed,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"claimed":           true,
		"session_completed": completed,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := s.claims.Results(r.Context(), sess.ID)
	if err != nil {
		s.internalError(w, "assemble results", err)
		return
	}
	type guestJSON struct {
		Name       string         `json:"name"`
		WordCounts map[string]int `json:"word_counts"`
	}
	guests := make([]guestJSON, 0, len(res.Guests))
	for _, g := range res.Guests {
		guests = append(guests, guestJSON{Name: g.Name, WordCounts: g.WordCounts})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"all_claimed": res.AllClaimed,
		"users":       res.ByUser,
		"guests":      guests,
	})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := s.jobs.DeadLetters(r.Context())
	if err != nil {
		s.internalError(w, "list dead letters", err)
		return
	}
	type letterJSON struct {
		SessionID string    `json:"session_id"`
		Reason    string    `json:"reason"`
		FailedAt  time.Time `json:"failed_at"`
	}
	out := make([]letterJSON, 0, len(letters))
	for _, dl := range letters {
		out = append(out, letterJSON{SessionID: dl.Job.SessionID, Reason: dl.Reason, FailedAt: dl.FailedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": out})
}

// session loads the session named by the {id} path value, writing the error
// response itself when the session cannot be served.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*store.Session, bool) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		s.internalError(w, "load session", err)
		return nil, false
	}
	return sess, true
}

// caller resolves the authenticated caller, writing a 401 on failure.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := s.identity.CallerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return "", false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("api: "+op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

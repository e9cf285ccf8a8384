package stream

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session は1接続分の配信統計。ChunkWriter を包んで数える
type Session struct {
	ID        string
	Transport string
	Remote    string
	StartedAt time.Time

	w      ChunkWriter
	frames atomic.Int64
	bytes  atomic.Int64
}

// WriteChunk は書き込んだバイト数を数える
func (s *Session) WriteChunk(p []byte) error {
	if err := s.w.WriteChunk(p); err != nil {
		return err
	}
	s.bytes.Add(int64(len(p)))
	return nil
}

// Flush は送出できたパートを1フレームとして数える
func (s *Session) Flush() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.frames.Add(1)
	return nil
}

// Frames は送出したフレーム数を返す
func (s *Session) Frames() int64 {
	return s.frames.Load()
}

// Bytes は書き込んだバイト数を返す
func (s *Session) Bytes() int64 {
	return s.bytes.Load()
}

// SessionInfo はセッションのスナップショット
type SessionInfo struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	Remote    string    `json:"remote"`
	StartedAt time.Time `json:"started_at"`
	Frames    int64     `json:"frames"`
	Bytes     int64     `json:"bytes"`
}

// Info はスナップショットを返す
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Transport: s.Transport,
		Remote:    s.Remote,
		StartedAt: s.StartedAt,
		Frames:    s.Frames(),
		Bytes:     s.Bytes(),
	}
}

// Stats は全セッションの集計
type Stats struct {
	Active        int           `json:"active"`
	TotalSessions int64         `json:"total_sessions"`
	TotalFrames   int64         `json:"total_frames"`
	TotalBytes    int64         `json:"total_bytes"`
	LastError     string        `json:"last_error,omitempty"`
	Sessions      []SessionInfo `json:"sessions"`
}

// Registry は配信中のセッションを管理する
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	total     int64
	frames    int64
	bytes     int64
	lastError string
}

// NewRegistry は新しい Registry を作成する
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Open は新しいセッションを登録する
func (r *Registry) Open(transport, remote string, w ChunkWriter) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		Transport: transport,
		Remote:    remote,
		StartedAt: time.Now(),
		w:         w,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.total++
	return s
}

// Close はセッションを終了し、終了理由を記録する
func (r *Registry) Close(s *Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return
	}
	delete(r.sessions, s.ID)
	r.frames += s.Frames()
	r.bytes += s.Bytes()
	if kind := Kind(err); kind != "" {
		r.lastError = kind
	}
}

// Stats は集計値を返す
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		Active:        len(r.sessions),
		TotalSessions: r.total,
		TotalFrames:   r.frames,
		TotalBytes:    r.bytes,
		LastError:     r.lastError,
		Sessions:      make([]SessionInfo, 0, len(r.sessions)),
	}
	for _, s := range r.sessions {
		info := s.Info()
		st.TotalFrames += info.Frames
		st.TotalBytes += info.Bytes
		st.Sessions = append(st.Sessions, info)
	}
	sort.Slice(st.Sessions, func(i, j int) bool {
		return st.Sessions[i].StartedAt.Before(st.Sessions[j].StartedAt)
	})
	return st
}

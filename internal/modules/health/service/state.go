package service

import (
	"sync/atomic"
	"time"
)

// State хранит флаги живости движка: готовность после прогрева, соединение фида, последний кадр.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds
}

// Snapshot: состояние для /healthz и /status.
type Snapshot struct {
	Ready        bool  `json:"ready"`
	WSConnected  bool  `json:"wsConnected"`
	UptimeSec    int64 `json:"uptimeSec"`
	LastTickUnix int64 `json:"lastTickUnix"`
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Ready:        s.Ready(),
		WSConnected:  s.WSConnected(),
		UptimeSec:    int64(s.Uptime().Seconds()),
		LastTickUnix: s.lastTickUnix.Load(),
	}
}

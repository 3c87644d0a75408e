package playback

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"DeckFM/logger"
	"DeckFM/model"
	"DeckFM/repository"
)

// 手动 next 和曲目完成事件赛跑时，这个窗口内的完成事件按过期丢弃
const completionRaceWindow = 300 * time.Millisecond

// Event 引擎对外发布的事件，经 WebSocket 推给前端
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	EventTrackCompleted = "track-completed"
	EventStatusChanged  = "playback-status"
)

// Engine 进程内唯一的播放状态机。
// 所有变更都串行经过同一把锁（单写者），读取是快照拷贝。
type Engine struct {
	mu sync.Mutex

	state      model.PlayerState
	shuffle    bool
	repeatMode model.RepeatMode
	volume     int
	positionMs int64

	tracks []model.Track // 完整播放列表
	index  int           // 当前曲目下标，-1 表示无

	played map[int]bool // shuffle 模式下已播过的下标

	generation    int64 // 每换一首歌 +1
	lastAdvanceAt time.Time

	backends map[model.Source]Backend
	history  repository.HistoryRepository
	rng      *rand.Rand

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// NewEngine creates a playback engine. history may be nil (no local history).
func NewEngine(history repository.HistoryRepository, backends ...Backend) *Engine {
	e := &Engine{
		state:       model.StateStopped,
		repeatMode:  model.RepeatOff,
		volume:      80,
		index:       -1,
		played:      make(map[int]bool),
		backends:    make(map[model.Source]Backend),
		history:     history,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		subscribers: make(map[int]chan Event),
	}
	for _, b := range backends {
		e.backends[b.Source()] = b
	}
	return e
}

// Subscribe registers an event listener; the returned func unsubscribes.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	ch := make(chan Event, 16)
	e.subscribers[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(c)
		}
	}
}

// publish 非阻塞广播，慢订阅者丢事件
func (e *Engine) publish(event Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Status returns a snapshot of the current playback state.
func (e *Engine) Status() model.PlaybackStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() model.PlaybackStatus {
	status := model.PlaybackStatus{
		State:      e.state,
		Shuffle:    e.shuffle,
		RepeatMode: e.repeatMode,
		Volume:     e.volume,
		PositionMs: e.positionMs,
		Queue:      []model.Track{},
	}
	if e.index >= 0 && e.index < len(e.tracks) {
		current := e.tracks[e.index]
		status.CurrentTrack = &current
		status.DurationMs = current.DurationMs
		if e.index+1 < len(e.tracks) {
			status.Queue = append(status.Queue, e.tracks[e.index+1:]...)
		}
	}
	return status
}

// Generation returns the current track generation counter.
// 前端可以把它回传给完成通知，用来丢弃过期事件。
func (e *Engine) Generation() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// startTrackLocked makes tracks[index] current and moves to playing.
func (e *Engine) startTrackLocked(index int) error {
	if index < 0 || index >= len(e.tracks) {
		return fmt.Errorf("track index %d out of range: %w", index, model.ErrNotFound)
	}
	track := e.tracks[index]

	backend, ok := e.backends[track.Source]
	if !ok {
		// 没有专属后端但带直链的曲目走通用路径
		if track.URL != "" {
			backend = NewURLBackend(track.Source)
		} else {
			return fmt.Errorf("no playback backend for source %q: %w", track.Source, model.ErrValidation)
		}
	}
	if err := backend.CheckPlayable(track); err != nil {
		// 当前曲目不可播，状态机退回 stopped
		e.state = model.StateStopped
		return err
	}

	e.index = index
	e.positionMs = 0
	e.state = model.StatePlaying
	e.generation++
	e.lastAdvanceAt = time.Now()
	e.played[index] = true

	if e.history != nil {
		if err := e.history.Record(track); err != nil {
			logger.Warn("Failed to record play history", logger.ErrorField(err))
		}
	}
	logger.Info("Track started",
		logger.String("trackId", track.ID),
		logger.String("title", track.Title),
		logger.String("source", string(track.Source)))

	e.publishStatusLocked()
	return nil
}

func (e *Engine) publishStatusLocked() {
	status := e.snapshotLocked()
	go e.publish(Event{Type: EventStatusChanged, Payload: status})
}

// Play resumes paused playback, or restarts the current track when stopped.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case model.StatePaused:
		e.state = model.StatePlaying
		e.publishStatusLocked()
		return nil
	case model.StateStopped:
		if e.index >= 0 && e.index < len(e.tracks) {
			return e.startTrackLocked(e.index)
		}
		if len(e.tracks) > 0 {
			return e.startTrackLocked(0)
		}
		return fmt.Errorf("nothing to play: %w", model.ErrValidation)
	}
	return nil // already playing
}

// Pause pauses playback. 停止态下是空操作。
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == model.StatePlaying {
		e.state = model.StatePaused
		e.publishStatusLocked()
	}
	return nil
}

// Toggle flips between playing and paused.
func (e *Engine) Toggle() error {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state == model.StatePlaying {
		return e.Pause()
	}
	return e.Play()
}

// Next advances to the next track per shuffle/repeat rules.
func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextLocked(false)
}

// nextLocked 选下一个下标。fromCompletion 区分自动推进与手动 next。
func (e *Engine) nextLocked(fromCompletion bool) error {
	if len(e.tracks) == 0 || e.index < 0 {
		return fmt.Errorf("queue is empty: %w", model.ErrValidation)
	}

	// repeat one：原地重播，忽略 shuffle 与队列推进
	if e.repeatMode == model.RepeatOne {
		return e.startTrackLocked(e.index)
	}

	if e.shuffle {
		next, ok := e.pickUnplayedLocked()
		if !ok {
			if e.repeatMode == model.RepeatAll {
				// 一轮放完，重置已播集合再来
				e.played = make(map[int]bool)
				if next, ok = e.pickUnplayedLocked(); ok {
					return e.startTrackLocked(next)
				}
				// 队列只剩当前这一首：循环模式下重播它，
				// 和非 shuffle 的 repeat all 回绕行为一致
				return e.startTrackLocked(e.index)
			}
			e.state = model.StateStopped
			e.positionMs = 0
			e.publishStatusLocked()
			return nil
		}
		return e.startTrackLocked(next)
	}

	next := e.index + 1
	if next >= len(e.tracks) {
		if e.repeatMode == model.RepeatAll {
			next = 0
		} else {
			// 队尾且不循环：停止
			e.state = model.StateStopped
			e.positionMs = 0
			e.publishStatusLocked()
			return nil
		}
	}
	return e.startTrackLocked(next)
}

// pickUnplayedLocked 随机挑一个未播过的下标
func (e *Engine) pickUnplayedLocked() (int, bool) {
	candidates := make([]int, 0, len(e.tracks))
	for i := range e.tracks {
		if !e.played[i] && i != e.index {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[e.rng.Intn(len(candidates))], true
}

// Previous steps back one track (wraps under repeat all).
func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tracks) == 0 || e.index < 0 {
		return fmt.Errorf("queue is empty: %w", model.ErrValidation)
	}
	if e.repeatMode == model.RepeatOne {
		return e.startTrackLocked(e.index)
	}
	prev := e.index - 1
	if prev < 0 {
		if e.repeatMode == model.RepeatAll {
			prev = len(e.tracks) - 1
		} else {
			// 队首：重播当前
			prev = e.index
		}
	}
	return e.startTrackLocked(prev)
}

// Seek moves the playhead within the current track.
func (e *Engine) Seek(positionMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index < 0 {
		return fmt.Errorf("no current track: %w", model.ErrValidation)
	}
	if positionMs < 0 {
		positionMs = 0
	}
	if d := e.tracks[e.index].DurationMs; d > 0 && positionMs > d {
		positionMs = d
	}
	e.positionMs = positionMs
	e.publishStatusLocked()
	return nil
}

// SetVolume sets volume in [0,100].
func (e *Engine) SetVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("volume %d out of range 0-100: %w", volume, model.ErrValidation)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = volume
	e.publishStatusLocked()
	return nil
}

// ToggleShuffle flips shuffle mode and resets the played set.
func (e *Engine) ToggleShuffle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shuffle = !e.shuffle
	e.played = make(map[int]bool)
	if e.index >= 0 {
		e.played[e.index] = true
	}
	e.publishStatusLocked()
	return e.shuffle
}

// SetRepeatMode sets the repeat mode.
func (e *Engine) SetRepeatMode(mode model.RepeatMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown repeat mode %q: %w", mode, model.ErrValidation)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeatMode = mode
	e.publishStatusLocked()
	return nil
}

// PlayTrack replaces the queue with a single track and starts it.
func (e *Engine) PlayTrack(track model.Track) error {
	return e.PlayTracks([]model.Track{track}, 0)
}

// PlayTracks loads an explicit ordered track list and starts at startIndex.
// playPlaylist / playPlaylistFromTrack / playTracksImmediate 都落到这里。
func (e *Engine) PlayTracks(tracks []model.Track, startIndex int) error {
	if len(tracks) == 0 {
		return fmt.Errorf("empty track list: %w", model.ErrValidation)
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return fmt.Errorf("start index %d out of range: %w", startIndex, model.ErrValidation)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = make([]model.Track, len(tracks))
	copy(e.tracks, tracks)
	e.played = make(map[int]bool)
	return e.startTrackLocked(startIndex)
}

// QueueTrack appends a track to the end of the queue.
func (e *Engine) QueueTrack(track model.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = append(e.tracks, track)
	e.publishStatusLocked()
}

// ClearQueue drops the upcoming tracks, keeping the current one.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index >= 0 && e.index < len(e.tracks) {
		current := e.tracks[e.index]
		e.tracks = []model.Track{current}
		e.index = 0
		e.played = map[int]bool{0: true}
	} else {
		e.tracks = nil
		e.index = -1
		e.played = make(map[int]bool)
	}
	e.publishStatusLocked()
}

// Stop halts playback and resets the playhead.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = model.StateStopped
	e.positionMs = 0
	e.publishStatusLocked()
}

// UpdatePosition 前端定时上报播放进度（引擎不解码音频，位置靠上报维护）
func (e *Engine) UpdatePosition(positionMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index >= 0 {
		e.positionMs = positionMs
	}
}

// HandleTrackCompleted drives auto-advance on end-of-track. generation < 0
// means the notifier didn't echo a generation; in that case completions that
// race a manual transition inside a short window are discarded as stale.
func (e *Engine) HandleTrackCompleted(generation int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.StatePlaying || e.index < 0 {
		return nil
	}
	if generation >= 0 && generation != e.generation {
		// 过期事件：对应的那首歌已经不是当前曲目
		return nil
	}
	if generation < 0 && time.Since(e.lastAdvanceAt) < completionRaceWindow {
		logger.Debug("Discarding stale track-completed event")
		return nil
	}

	go e.publish(Event{Type: EventTrackCompleted, Payload: e.tracks[e.index]})
	return e.nextLocked(true)
}

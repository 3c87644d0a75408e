package model

// PlayerState 播放机状态机的状态
type PlayerState string

const (
	StateStopped PlayerState = "stopped"
	StatePlaying PlayerState = "playing"
	StatePaused  PlayerState = "paused"
)

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// Valid 判断循环模式是否合法
func (m RepeatMode) Valid() bool {
	switch m {
	case RepeatOff, RepeatOne, RepeatAll:
		return true
	}
	return false
}

// PlaybackStatus 进程内唯一的播放状态快照，由播放引擎维护，前端轮询读取。
// 不落盘。
type PlaybackStatus struct {
	State        PlayerState `json:"state"`
	Shuffle      bool        `json:"shuffle"`
	RepeatMode   RepeatMode  `json:"repeatMode"`
	Volume       int         `json:"volume"` // 0-100
	CurrentTrack *Track      `json:"currentTrack,omitempty"`
	PositionMs   int64       `json:"positionMs"`
	DurationMs   int64       `json:"durationMs"`
	Queue        []Track     `json:"queue"`
}

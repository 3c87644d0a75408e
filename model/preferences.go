package model

// ColumnPreferences 曲目表格的列显示偏好，纯展示设置。
// 读写必须精确往返：Columns 原位增删、ColumnOrder 是 Columns 下标的一个排列。
type ColumnPreferences struct {
	Columns      []string       `json:"columns"`
	ColumnOrder  []int          `json:"columnOrder"`
	ColumnWidths map[string]int `json:"columnWidths"`
}

// DefaultColumnPreferences 新用户的默认列配置
func DefaultColumnPreferences() *ColumnPreferences {
	cols := []string{"title", "artist", "album", "duration"}
	order := make([]int, len(cols))
	for i := range order {
		order[i] = i
	}
	return &ColumnPreferences{
		Columns:      cols,
		ColumnOrder:  order,
		ColumnWidths: map[string]int{},
	}
}

// PreferenceRecord 偏好设置的持久化行（GORM 模型），按 key 存 JSON
type PreferenceRecord struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt int64  `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PreferenceRecord) TableName() string {
	return "preferences"
}

// PlayHistory 本地播放历史（GORM 模型），引擎每次开播写入一条
type PlayHistory struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TrackSource Source `gorm:"size:16;index" json:"trackSource"`
	TrackID     string `gorm:"size:128" json:"trackId"`
	Title       string `gorm:"size:512" json:"title"`
	Artist      string `gorm:"size:512" json:"artist"`
	Album       string `gorm:"size:512" json:"album"`
	ImageURL    string `gorm:"size:1024" json:"imageUrl"`
	PlayedAt    int64  `gorm:"index" json:"playedAt"`
}

// TableName 指定表名
func (PlayHistory) TableName() string {
	return "play_history"
}

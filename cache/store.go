package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"DeckFM/logger"
	"DeckFM/model"
)

// SchemaVersion 缓存条目的结构版本。数据结构变更时 +1，
// 旧版本条目在读取时自动清除，当作未命中。
const SchemaVersion = 2

// 约定的逻辑键
const (
	KeyPlaylists       = "playlists"
	KeyCustomPlaylists = "custom_playlists"
)

// Entry 磁盘上的缓存条目
type Entry struct {
	Version   int             `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// validate 校验条目结构版本。不匹配返回 ErrCacheVersion，
// 这个错误只在 Store 内部消化，从不跨出缓存层。
func (e *Entry) validate(version int) error {
	if e.Version != version {
		return fmt.Errorf("entry version %d, current %d: %w",
			e.Version, version, model.ErrCacheVersion)
	}
	return nil
}

// Store 磁盘缓存，带按键的内存镜像。
// 写入先更新镜像再异步刷盘，读取优先走镜像。
type Store struct {
	dir     string
	version int

	mu     sync.RWMutex
	mirror map[string]*Entry

	// diskMu 串行化后台落盘。镜像先行更新，落盘时总是取镜像的
	// 最新条目，乱序的后台写不会让旧数据盖掉新数据。
	diskMu sync.Mutex
	wg     sync.WaitGroup
}

// NewStore creates a cache store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{
		dir:     dir,
		version: SchemaVersion,
		mirror:  make(map[string]*Entry),
	}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Write stores a JSON payload under key. 镜像同步更新，
// 磁盘写入在后台完成，不阻塞调用方。
func (s *Store) Write(key string, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("cache payload for %q is not valid JSON: %w", key, model.ErrValidation)
	}

	entry := &Entry{
		Version:   s.version,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}

	s.mu.Lock()
	s.mirror[key] = entry
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.persistLatest(key)
	}()
	return nil
}

// persistLatest 落盘该键在镜像里的最新条目。
// 条目已被 Clear 掉就什么都不写（磁盘文件也已删除）。
func (s *Store) persistLatest(key string) {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()

	s.mu.RLock()
	entry, ok := s.mirror[key]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.persist(key, entry); err != nil {
		logger.Warn("Failed to persist cache entry",
			logger.String("key", key),
			logger.ErrorField(err))
	}
}

// persist 原子写盘：先写临时文件再改名
func (s *Store) persist(key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	tmpPath := s.path(key) + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Read returns the payload for key, or nil on a miss.
// 版本不匹配时自动清除并按未命中处理，绝不向调用方报错。
func (s *Store) Read(key string) (json.RawMessage, error) {
	s.mu.RLock()
	entry, ok := s.mirror[key]
	s.mu.RUnlock()

	if !ok {
		var err error
		entry, err = s.load(key)
		if err != nil || entry == nil {
			return nil, err
		}
		s.mu.Lock()
		s.mirror[key] = entry
		s.mu.Unlock()
	}

	if err := entry.validate(s.version); err != nil {
		logger.Info("Cache version mismatch, clearing entry",
			logger.String("key", key),
			logger.ErrorField(err))
		if err := s.Clear(key); err != nil {
			logger.Warn("Failed to clear stale cache entry",
				logger.String("key", key),
				logger.ErrorField(err))
		}
		return nil, nil
	}
	return entry.Payload, nil
}

// load 从磁盘加载条目；文件不存在或损坏都按未命中处理
func (s *Store) load(key string) (*Entry, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file for %q: %w", key, err)
	}
	entry := &Entry{}
	if err := json.Unmarshal(data, entry); err != nil {
		// 损坏的缓存文件直接清掉
		logger.Warn("Corrupt cache file, removing",
			logger.String("key", key),
			logger.ErrorField(err))
		os.Remove(s.path(key))
		return nil, nil
	}
	return entry, nil
}

// Clear removes the entry for key from both the mirror and disk.
func (s *Store) Clear(key string) error {
	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file for %q: %w", key, err)
	}
	return nil
}

// Stats 返回缓存条目数与磁盘占用（字节）
func (s *Store) Stats() (int, int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache directory: %w", err)
	}
	count := 0
	var size int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		count++
		size += info.Size()
	}
	return count, size, nil
}

// Flush waits for pending disk writes. 测试和优雅退出用。
func (s *Store) Flush() {
	s.wg.Wait()
}

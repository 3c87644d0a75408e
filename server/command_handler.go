package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"DeckFM/model"
)

// commandFunc 单个命令的实现
type commandFunc func(ctx context.Context, args commandArgs) (interface{}, error)

// commandRequest 命令总线的请求体：命令名 + JSON 可序列化的参数表
type commandRequest struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// commandArgs 参数表的弱类型视图，带取值辅助
type commandArgs map[string]json.RawMessage

func (a commandArgs) getString(key string) (string, error) {
	raw, ok := a[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q: %w", key, model.ErrValidation)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("argument %q must be a string: %w", key, model.ErrValidation)
	}
	return s, nil
}

func (a commandArgs) optionalString(key string) *string {
	raw, ok := a[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func (a commandArgs) getInt(key string) (int, error) {
	raw, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q: %w", key, model.ErrValidation)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("argument %q must be a number: %w", key, model.ErrValidation)
	}
	return n, nil
}

func (a commandArgs) getInt64(key string) (int64, error) {
	raw, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q: %w", key, model.ErrValidation)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("argument %q must be a number: %w", key, model.ErrValidation)
	}
	return n, nil
}

func (a commandArgs) optionalInt(key string, fallback int) int {
	raw, ok := a[key]
	if !ok {
		return fallback
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return fallback
	}
	return n
}

// decode 把某个参数整体反序列化到结构里
func (a commandArgs) decode(key string, v interface{}) error {
	raw, ok := a[key]
	if !ok {
		return fmt.Errorf("missing argument %q: %w", key, model.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("argument %q has unexpected shape: %w", key, model.ErrValidation)
	}
	return nil
}

// registerCommands 装配完整的命令表
func (h *APIHandler) registerCommands() {
	h.commands = map[string]commandFunc{}
	h.registerPlaybackCommands()
	h.registerAuthCommands()
	h.registerLibraryCommands()
}

// CommandHandler 命令总线入口：POST /api/command {command, args}
func (h *APIHandler) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("malformed command request: %w", model.ErrValidation))
		return
	}
	if req.Command == "" {
		respondError(w, fmt.Errorf("missing command name: %w", model.ErrValidation))
		return
	}

	fn, ok := h.commands[req.Command]
	if !ok {
		respondError(w, fmt.Errorf("unknown command %q: %w", req.Command, model.ErrValidation))
		return
	}

	args := commandArgs{}
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			respondError(w, fmt.Errorf("malformed command args: %w", model.ErrValidation))
			return
		}
	}

	// 命令都应该在远小于这个上限的时间内返回；上限防御挂死的提供方
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	data, err := fn(ctx, args)
	if err != nil {
		respondError(w, fmt.Errorf("command %s: %w", req.Command, err))
		return
	}
	respondJSON(w, data)
}

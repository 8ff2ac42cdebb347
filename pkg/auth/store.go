package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/pkg/logger"
)

// Source 长期凭证来源
type Source interface {
	Token() string
}

// Store 当前长期凭证。登录、登出、文件变更都会更新它，
// 每次更新都会通知订阅者（即使值未变化，由订阅者自行比较）
type Store struct {
	mu    sync.RWMutex
	token string
	subs  []func(token string)
}

// NewStore 创建凭证存储
func NewStore(initial string) *Store {
	return &Store{token: strings.TrimSpace(initial)}
}

// Token 返回当前凭证
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set 更新凭证并通知订阅者
func (s *Store) Set(token string) {
	token = strings.TrimSpace(token)

	s.mu.Lock()
	s.token = token
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(token)
	}
}

// Subscribe 订阅凭证更新
func (s *Store) Subscribe(fn func(token string)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// LoadFile 从文件读取凭证
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	s.Set(string(data))
	return nil
}

// WatchFile 监听凭证文件，内容变化时更新凭证，ctx 结束时停止。
// 监听所在目录，兼容原子替换（rename）方式的写入
func (s *Store) WatchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	log := logger.With(zap.String("token_file", target))

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				data, err := os.ReadFile(target)
				if err != nil {
					// rename 期间文件可能暂时不存在
					log.Debug("token file not readable", zap.Error(err))
					continue
				}
				token := strings.TrimSpace(string(data))
				if token == s.Token() {
					continue
				}
				log.Info("token file changed")
				s.Set(token)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("token file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

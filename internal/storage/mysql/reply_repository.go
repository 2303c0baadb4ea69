package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"AgentKit/internal/config"
)

const memoryWindow = 512

// ReplyRecord 表示一次提及回复尝试的落库结构。
type ReplyRecord struct {
	ID        int64  `json:"id"`
	MentionID string `json:"mention_id"`
	Success   bool   `json:"success"`
	NoOp      bool   `json:"no_op"`
	Message   string `json:"message"`
	TweetID   string `json:"tweet_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Text      string `json:"text,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// ReplyRepository 抽象回复结果的持久化接口。
type ReplyRepository interface {
	Save(ctx context.Context, record *ReplyRecord) error
	ListLatest(ctx context.Context, limit int) ([]ReplyRecord, error)
	Close() error
}

// New 根据配置选择回复仓库实现。
func New(ctx context.Context, cfg config.ReplyStoreConfig, dataDir string) (ReplyRepository, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryReplyRepository(dataDir)
	case "mysql":
		return NewSQLReplyRepository(ctx, Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("暂不支持的存储驱动: %s", cfg.Driver)
	}
}

// MemoryReplyRepository 在内存中保留最近的回复，并以 JSON 行追加写入本地文件。
type MemoryReplyRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []ReplyRecord
	nextID   int64
}

// NewMemoryReplyRepository 创建内存回复仓库，并从磁盘恢复历史记录。
func NewMemoryReplyRepository(dataDir string) (*MemoryReplyRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryReplyRepository{dataFile: filepath.Join(dataDir, "replies.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录回复结果。
func (m *MemoryReplyRepository) Save(_ context.Context, record *ReplyRecord) error {
	if record == nil {
		return fmt.Errorf("回复记录不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	record.ID = m.nextID
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化回复记录失败: %w", err)
	}

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开回复日志失败: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入回复日志失败: %w", err)
	}

	m.records = append([]ReplyRecord{*record}, m.records...)
	if len(m.records) > memoryWindow {
		m.records = m.records[:memoryWindow]
	}
	return nil
}

// ListLatest 返回最近的回复记录，按写入顺序倒序排列。
func (m *MemoryReplyRepository) ListLatest(_ context.Context, limit int) ([]ReplyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]ReplyRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close 内存仓库无需释放资源。
func (m *MemoryReplyRepository) Close() error { return nil }

func (m *MemoryReplyRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取回复日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []ReplyRecord
	for scanner.Scan() {
		var record ReplyRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID > m.nextID {
			m.nextID = record.ID
		}
		restored = append([]ReplyRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析回复日志失败: %w", err)
	}
	if len(restored) > memoryWindow {
		restored = restored[:memoryWindow]
	}
	m.records = restored
	return nil
}

// SQLReplyRepository 使用 MySQL 存储回复记录。
type SQLReplyRepository struct {
	db *sql.DB
}

// NewSQLReplyRepository 创建连接池并执行嵌入的迁移。
func NewSQLReplyRepository(ctx context.Context, cfg Config) (*SQLReplyRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := &SQLReplyRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

const insertReplySQL = `INSERT INTO replies
    (mention_id, success, no_op, message, tweet_id, error_message, reply_text, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const listRepliesSQL = `SELECT id, mention_id, success, no_op, message, tweet_id, error_message, reply_text, created_at
    FROM replies ORDER BY created_at DESC, id DESC LIMIT ?`

// Save 将回复记录写入 MySQL。
func (s *SQLReplyRepository) Save(ctx context.Context, record *ReplyRecord) error {
	if record == nil {
		return fmt.Errorf("回复记录不能为空")
	}
	res, err := s.db.ExecContext(ctx, insertReplySQL,
		record.MentionID,
		record.Success,
		record.NoOp,
		record.Message,
		record.TweetID,
		record.Error,
		record.Text,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("写入回复记录失败: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListLatest 查询最近的回复记录。
func (s *SQLReplyRepository) ListLatest(ctx context.Context, limit int) ([]ReplyRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, listRepliesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("查询回复记录失败: %w", err)
	}
	defer rows.Close()

	var records []ReplyRecord
	for rows.Next() {
		var r ReplyRecord
		if err := rows.Scan(&r.ID, &r.MentionID, &r.Success, &r.NoOp, &r.Message, &r.TweetID, &r.Error, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析回复记录失败: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历回复记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭连接池。
func (s *SQLReplyRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

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
	"unicode/utf8"

	xerrors "WalletChat/internal/errors"
)

// TransferStatus 描述一次转账提交的结果。
type TransferStatus string

const (
	// TransferSucceeded 表示钱包后端接受了转账。
	TransferSucceeded TransferStatus = "succeeded"
	// TransferFailed 表示钱包后端明确拒绝了转账。
	TransferFailed TransferStatus = "failed"
	// TransferErrored 表示调用过程中出现网络或解析错误，结果未知。
	TransferErrored TransferStatus = "error"
)

// TransferRecord 表示一次确认后的转账提交。
type TransferRecord struct {
	ID               string         `json:"id"`
	FlowID           string         `json:"flow_id"`
	UserID           string         `json:"user_id"`
	NetworkName      string         `json:"network_name"`
	TokenAddress     string         `json:"token_address"`
	Quantity         string         `json:"quantity"`
	RecipientAddress string         `json:"recipient_address"`
	Status           TransferStatus `json:"status"`
	OrderID          string         `json:"order_id,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        int64          `json:"created_at"`
}

// TransferRepository 抽象转账历史的持久化接口。
type TransferRepository interface {
	Save(ctx context.Context, record TransferRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]TransferRecord, error)
	Close() error
}

const (
	defaultListLimit  = 20
	maxRecordsPerUser = 100
	transferLogName   = "transfers.log"
	maxErrorMessage   = 512
)

func validateRecord(record TransferRecord) error {
	if record.ID == "" || record.UserID == "" || record.FlowID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "转账记录缺少 ID、用户或流程信息")
	}
	return nil
}

// FileTransferRepository 以 JSON lines 追加写入本地文件，并在内存中按用户索引。
// dataDir 为空时只保存在内存中。
type FileTransferRepository struct {
	mu       sync.RWMutex
	dataFile string
	byUser   map[string][]TransferRecord
	seen     map[string]struct{}
}

// NewFileTransferRepository 创建文件转账仓库并加载已有记录。
func NewFileTransferRepository(dataDir string) (*FileTransferRepository, error) {
	repo := &FileTransferRepository{
		byUser: make(map[string][]TransferRecord),
		seen:   make(map[string]struct{}),
	}
	if dataDir == "" {
		return repo, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo.dataFile = filepath.Join(dataDir, transferLogName)
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 追加一条转账记录，同一流程只能记录一次。
func (m *FileTransferRepository) Save(_ context.Context, record TransferRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.seen[record.FlowID]; dup {
		return xerrors.New(xerrors.CodeConflict, "该流程的转账已记录", xerrors.WithMetadata("flow_id", record.FlowID))
	}

	if m.dataFile != "" {
		encoded, err := json.Marshal(record)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化转账记录失败")
		}
		file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开转账日志失败")
		}
		_, writeErr := file.Write(append(encoded, '\n'))
		closeErr := file.Close()
		if writeErr != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, writeErr, "写入转账日志失败")
		}
		if closeErr != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, closeErr, "关闭转账日志失败")
		}
	}
	m.index(record)
	return nil
}

// index 把记录放到用户列表头部，保持按时间倒序。调用方需持有写锁。
func (m *FileTransferRepository) index(record TransferRecord) {
	list := append([]TransferRecord{record}, m.byUser[record.UserID]...)
	if len(list) > maxRecordsPerUser {
		list = list[:maxRecordsPerUser]
	}
	m.byUser[record.UserID] = list
	m.seen[record.FlowID] = struct{}{}
}

// ListByUser 返回用户最近的转账记录，按时间倒序排列。
func (m *FileTransferRepository) ListByUser(_ context.Context, userID string, limit int) ([]TransferRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.byUser[userID]
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > len(list) {
		limit = len(list)
	}
	results := make([]TransferRecord, limit)
	copy(results, list[:limit])
	return results, nil
}

// Close 实现 TransferRepository 接口。
func (m *FileTransferRepository) Close() error { return nil }

func (m *FileTransferRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("读取转账日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record TransferRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil || validateRecord(record) != nil {
			continue
		}
		m.index(record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析转账日志失败: %w", err)
	}
	return nil
}

// SQLTransferRepository 使用 MySQL 存储转账历史。
type SQLTransferRepository struct {
	db *sql.DB
}

// NewSQLTransferRepository 创建连接池，并按需执行迁移。
func NewSQLTransferRepository(ctx context.Context, cfg Config) (*SQLTransferRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := runMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLTransferRepository{db: db}, nil
}

const insertTransferSQL = `INSERT INTO transfers
    (id, flow_id, user_id, network_name, token_address, quantity, recipient_address, status, order_id, error_message, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const listTransfersSQL = `SELECT id, flow_id, user_id, network_name, token_address, quantity, recipient_address, status, order_id, error_message, created_at
    FROM transfers WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`

// Save 将转账记录写入 MySQL。
func (s *SQLTransferRepository) Save(ctx context.Context, record TransferRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	errMsg := truncateUTF8(record.Error, maxErrorMessage)
	if _, err := s.db.ExecContext(ctx, insertTransferSQL,
		record.ID,
		record.FlowID,
		record.UserID,
		record.NetworkName,
		record.TokenAddress,
		record.Quantity,
		record.RecipientAddress,
		string(record.Status),
		record.OrderID,
		errMsg,
		record.CreatedAt,
	); err != nil {
		if mysqlErrorNumber(err) == errDuplicateEntry {
			return xerrors.Wrap(xerrors.CodeConflict, err, "该流程的转账已记录", xerrors.WithMetadata("flow_id", record.FlowID))
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入转账记录失败")
	}
	return nil
}

// ListByUser 查询用户最近的转账记录。
func (s *SQLTransferRepository) ListByUser(ctx context.Context, userID string, limit int) ([]TransferRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, listTransfersSQL, userID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账记录失败")
	}
	defer rows.Close()

	var records []TransferRecord
	for rows.Next() {
		var record TransferRecord
		var status string
		if err := rows.Scan(&record.ID, &record.FlowID, &record.UserID, &record.NetworkName, &record.TokenAddress,
			&record.Quantity, &record.RecipientAddress, &status, &record.OrderID, &record.Error, &record.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析转账记录失败")
		}
		record.Status = TransferStatus(status)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历转账记录失败")
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLTransferRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ TransferRepository = (*FileTransferRepository)(nil)
	_ TransferRepository = (*SQLTransferRepository)(nil)
)

// truncateUTF8 把 s 截断到不超过 n 字节，且不拆分多字节字符。
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

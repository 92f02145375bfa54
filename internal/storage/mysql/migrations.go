package mysql

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"WalletChat/deploy/migrations"
)

var embeddedMigrations fs.ReadFileFS = migrations.Files

// migrationFile 是一个版本的迁移脚本。checksum 用于发现已应用脚本被改动的情况。
type migrationFile struct {
	version    string
	name       string
	checksum   string
	statements []string
}

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        checksum CHAR(64) NOT NULL,
        applied_at BIGINT NOT NULL
)`
	selectAppliedMigrations = `SELECT version, checksum FROM schema_migrations`
	insertAppliedMigration  = `INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`
)

// runMigrations 执行尚未应用的迁移，每个版本一个事务。
// 已应用版本的脚本内容发生变化时拒绝启动。
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	applied, err := appliedChecksums(ctx, db)
	if err != nil {
		return err
	}
	files, err := loadMigrationFiles(embeddedMigrations)
	if err != nil {
		return err
	}

	for _, m := range files {
		sum, done := applied[m.version]
		if !done {
			if err := applyMigration(ctx, db, m); err != nil {
				return err
			}
			continue
		}
		if sum != m.checksum {
			return fmt.Errorf("迁移 %s 已应用但脚本内容已变更", m.name)
		}
	}
	return nil
}

func appliedChecksums(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, selectAppliedMigrations)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, m migrationFile) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			// 唯一索引可能已由运维手工创建。
			if mysqlErrorNumber(err) == errDuplicateKeyName {
				err = nil
				continue
			}
			return fmt.Errorf("执行迁移 %s 失败: %w", m.name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, insertAppliedMigration, m.version, m.name, m.checksum, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录迁移 %s 失败: %w", m.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", m.name, err)
	}
	return nil
}

// loadMigrationFiles 读取根目录下的 .sql 文件，按版本号排序，跳过没有语句的文件。
func loadMigrationFiles(fsys fs.ReadFileFS) ([]migrationFile, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := fsys.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		sum := sha256.Sum256(content)
		files = append(files, migrationFile{
			version:    migrationVersion(name),
			name:       name,
			checksum:   hex.EncodeToString(sum[:]),
			statements: statements,
		})
	}
	slices.SortFunc(files, func(a, b migrationFile) int {
		if c := cmp.Compare(a.version, b.version); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return files, nil
}

func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// migrationVersion 取文件名中第一个下划线之前的部分，例如 0001_create_transfers.sql 为 0001。
func migrationVersion(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	version, _, _ := strings.Cut(base, "_")
	return version
}

// Package database は通知ストアのデータベース接続とスキーマ適用を担当する。
package database

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/nao1215/powerboard/pkg/migration"
)

//go:embed migrations
var migrations embed.FS

// Open はdsnに応じたドライバでDBを開き、マイグレーションを適用する。
// postgres:// または postgresql:// で始まるdsnはlib/pq、それ以外はSQLiteとして扱う。
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	driver, dir := driverFor(dsn)

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if driver == "sqlite" {
		// SQLiteは書き込みを直列化する。:memory: では接続ごとに別DBになるため1本に固定する。
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if err := migration.Run(ctx, db, migrations, dir); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// driverFor はdsnからドライバ名とマイグレーションディレクトリを決める。
func driverFor(dsn string) (driver, dir string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "migrations/postgres"
	}
	return "sqlite", "migrations/sqlite"
}

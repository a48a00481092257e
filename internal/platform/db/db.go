package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect は Mirror Store の SQL 方言
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// LockClause は行ロック句を返す。SQLite は書き込みトランザクションが直列化されるので不要。
func (d Dialect) LockClause() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" toml:"driver"` // "mysql" (default) or "sqlite"
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Username string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	DBName   string `yaml:"dbname" toml:"dbname"`
	Path     string `yaml:"path" toml:"path"` // sqlite only
}

// Open connects according to c.Driver and reports the dialect the stores must speak.
func Open(c DatabaseConfig) (*sql.DB, Dialect, error) {
	switch c.Driver {
	case "", string(MySQL):
		conn, err := Connect(c)
		return conn, MySQL, err
	case string(SQLite):
		conn, err := OpenSQLite(c.Path)
		return conn, SQLite, err
	default:
		return nil, "", fmt.Errorf("unknown database driver %q", c.Driver)
	}
}

func mysqlConfig(c DatabaseConfig) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 3 * time.Second
	mc.ReadTimeout = 5 * time.Second
	mc.WriteTimeout = 5 * time.Second
	// マイグレーションファイルは複数ステートメントを含む
	mc.MultiStatements = true
	// 値が変わらない UPDATE も 1 行として数える (CAS 判定のため)
	mc.ClientFoundRows = true
	return mc
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(string(MySQL), mysqlConfig(c).FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// OpenSQLite opens a local SQLite mirror. Every transaction takes the write lock up
// front (_txlock=immediate) so read-then-write sequences cannot interleave.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_txlock", "immediate")
	q.Add("_time_format", "sqlite")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}

	db, err := sql.Open(string(SQLite), "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if path == ":memory:" {
		// 接続ごとに別DBになるため1本に固定
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

package database

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrUnsupportedDriver = errors.New("unsupported db driver")

type Opts struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	LogLevel           string
	Logger             *zap.Logger
}

// NewGorm opens the kv_entries database. sqlite is the zero-setup default.
func NewGorm(o Opts) (*gorm.DB, error) {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	var dial gorm.Dialector
	switch o.Driver {
	case "sqlite":
		dsn := o.DSN
		if isMemorySQLite(dsn) {
			// every pooled connection would see its own empty database
			o.MaxOpenConns = 1
		} else {
			dsn = withBusyTimeout(dsn)
		}
		dial = sqlite.Open(dsn)
	case "postgres":
		dial = postgres.Open(o.DSN)
	case "mysql":
		dsn := normalizeMySQLDSN(o.DSN, o.Username, o.Password)
		masked := dsn
		if at := strings.Index(masked, "@"); at > 0 {
			if colon := strings.Index(masked[:at], ":"); colon > 0 {
				masked = masked[:colon+1] + "****" + masked[at:]
			}
		}
		o.Logger.Info("mysql dsn", zap.String("dsn", masked))

		dial = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, o.Driver)
	}
	lvl := logger.Warn
	switch o.LogLevel {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info":
		lvl = logger.Info
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(lvl),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(o.MaxOpenConns)
	sqlDB.SetMaxIdleConns(o.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(o.ConnMaxLifetimeMin) * time.Minute)
	db = db.
		Session(&gorm.Session{
			PrepareStmt:            true,
			SkipDefaultTransaction: true,
		})
	return db, nil
}

func isMemorySQLite(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

// withBusyTimeout makes a writer wait for another connection's lock on a
// shared database file instead of failing with "database is locked".
func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") || strings.Contains(dsn, "_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// jdbcParams renames JDBC query options to their go-sql-driver names.
// An empty target drops the option.
var jdbcParams = map[string]string{
	"characterEncoding":    "charset",
	"serverTimezone":       "loc",
	"useSSL":               "tls",
	"useUnicode":           "",
	"zeroDateTimeBehavior": "",
}

// normalizeMySQLDSN accepts mysql:// and jdbc:mysql:// URLs and rewrites them
// into user:pass@tcp(host)/db?opts. Native DSNs pass through unchanged.
func normalizeMySQLDSN(input, userOverride, passOverride string) string {
	in := strings.TrimPrefix(strings.TrimSpace(input), "jdbc:")
	if !strings.HasPrefix(in, "mysql://") {
		return strings.TrimSpace(input)
	}
	u, err := url.Parse(in)
	if err != nil {
		return in // let the driver report it
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	q := u.Query()
	user = firstNonEmpty(userOverride, q.Get("user"), user)
	pass = firstNonEmpty(passOverride, q.Get("password"), pass)
	q.Del("user")
	q.Del("password")

	for from, to := range jdbcParams {
		v := q.Get(from)
		q.Del(from)
		if v == "" || to == "" || q.Get(to) != "" {
			continue
		}
		if from == "useSSL" {
			v = sslMode(v)
		}
		q.Set(to, v)
	}
	if q.Get("parseTime") == "" {
		q.Set("parseTime", "true")
	}
	if q.Get("charset") == "" {
		q.Set("charset", "utf8mb4")
	}

	var b strings.Builder
	if user != "" {
		b.WriteString(user)
		if pass != "" {
			b.WriteString(":" + pass)
		}
		b.WriteByte('@')
	}
	fmt.Fprintf(&b, "tcp(%s)/%s", u.Host, strings.TrimPrefix(u.Path, "/"))
	if enc := q.Encode(); enc != "" {
		b.WriteString("?" + enc)
	}
	return b.String()
}

func sslMode(v string) string {
	switch strings.ToLower(v) {
	case "true", "1":
		return "true"
	case "skip-verify", "preferred":
		return strings.ToLower(v)
	}
	return "false"
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrConflict       = errors.New("unique constraint violated")
	ErrStaleVersion   = errors.New("status version changed")
	ErrLastSuperuser  = errors.New("at least one superuser must remain")
	ErrUserHasServers = errors.New("user still owns servers")
	ErrNodeHasServers = errors.New("node still hosts servers")
	ErrLimitReached   = errors.New("limit reached")
	ErrBusy           = errors.New("operation already in progress")
	ErrNameTaken      = errors.New("name already taken")
	ErrEmailTaken     = errors.New("email already taken")
)

type Store struct {
	db *gorm.DB
}

type Options struct {
	Path string
	// LogLevel defaults to gormlogger.Error.
	LogLevel gormlogger.LogLevel
}

func NewWithOptions(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = gormlogger.Error
	}

	newLogger := gormlogger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		gormlogger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  opts.LogLevel,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn(opts.Path)), &gorm.Config{Logger: newLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection serializes them instead of
	// surfacing SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&userRow{},
		&credentialRow{},
		&nodeRow{},
		&serverRow{},
		&portRow{},
		&subuserRow{},
		&backupRow{},
	)
	if err != nil {
		return fmt.Errorf("error migrating database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// joinPorts keeps the comma-joined extra port column format.
func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func splitPorts(raw string) []int {
	if raw == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		p, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || p == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func now() time.Time { return time.Now().UTC() }

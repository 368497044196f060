package audit

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresConfig describes the optional database audit sink.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// DSN overrides the field-built connection string when set.
	DSN string
}

// DSNString builds a postgres connection URL from the config fields.
func (c PostgresConfig) DSNString() string {
	if c.DSN != "" {
		return c.DSN
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}
	u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	return u.String()
}

// actionRow is the table layout for persisted audit actions.
type actionRow struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp   time.Time `gorm:"index"`
	ActionType  string    `gorm:"size:64;index"`
	Description string
	Data        string `gorm:"type:jsonb"`
	Session     string `gorm:"size:64"`
}

func (actionRow) TableName() string { return "emergency_actions" }

// PostgresSink appends audit actions to a Postgres table.
type PostgresSink struct {
	db *gorm.DB
}

// NewPostgresSink opens the connection and migrates the actions table.
func NewPostgresSink(cfg PostgresConfig) (*PostgresSink, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSNString()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres audit sink")
	}
	if err := db.AutoMigrate(&actionRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate emergency_actions")
	}
	return &PostgresSink{db: db}, nil
}

// Append inserts one action row.
func (s *PostgresSink) Append(action Action) error {
	row := actionRow{
		Timestamp:   action.Timestamp,
		ActionType:  action.Type,
		Description: action.Description,
		Session:     action.Session,
	}
	if len(action.Data) > 0 {
		row.Data = encodeData(action.Data)
	}
	return s.db.Create(&row).Error
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func encodeData(data map[string]any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

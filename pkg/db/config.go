package db

import "time"

// Config describes a database connection and its pool.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Tracing registers otelgorm spans for every statement.
	Tracing bool
	// PoolMetrics registers the gorm prometheus plugin.
	PoolMetrics bool
}

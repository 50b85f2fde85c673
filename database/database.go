package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mbolis/intake-survey/config"
)

// connection options applied to every connection of the pool
const dsnOptions = "_foreign_keys=on&_busy_timeout=5000"

func Open(cfg config.Config) (db *sql.DB, err error) {
	dsn := cfg.DBUrl
	if strings.Contains(dsn, "?") {
		dsn += "&" + dsnOptions
	} else {
		dsn += "?" + dsnOptions
	}

	db, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return
	}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	err = migrateDB(db)
	if err != nil {
		db.Close()
		return
	}

	return
}

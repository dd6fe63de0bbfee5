package db

import (
	"fmt"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// NewTest opens an isolated in-memory SQLite database for tests.
func NewTest() (*gorm.DB, error) {
	name := fmt.Sprintf("file:partnerflow_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// a single connection keeps the shared in-memory database alive and
	// serializes writers
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}

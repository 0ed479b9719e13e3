package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func withMockOpen(t *testing.T, open func(dsn string, opts Options) (*sql.DB, error)) {
	t.Helper()
	prev := openDB
	openDB = open
	t.Cleanup(func() { openDB = prev })

	singleton.mu.Lock()
	singleton.db = nil
	singleton.mu.Unlock()
	t.Cleanup(func() {
		singleton.mu.Lock()
		singleton.db = nil
		singleton.mu.Unlock()
	})
}

func mockOpen(string, Options) (*sql.DB, error) {
	db, _, err := sqlmock.New()
	return db, err
}

func TestGetSingletonSharesOnePool(t *testing.T) {
	var opens int32
	withMockOpen(t, func(dsn string, opts Options) (*sql.DB, error) {
		atomic.AddInt32(&opens, 1)
		return mockOpen(dsn, opts)
	})

	var wg sync.WaitGroup
	results := make([]*sql.DB, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := GetSingleton(context.Background(), "postgres://ignored", DefaultLambdaOptions())
			if err != nil {
				t.Errorf("GetSingleton: %v", err)
			}
			results[i] = db
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&opens) != 1 {
		t.Fatalf("expected one open, got %d", opens)
	}
	for _, db := range results[1:] {
		if db != results[0] {
			t.Fatalf("expected every caller to get the same pool")
		}
	}
}

func TestGetSingletonRetriesAfterFailure(t *testing.T) {
	var calls int32
	withMockOpen(t, func(dsn string, opts Options) (*sql.DB, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("connection refused")
		}
		return mockOpen(dsn, opts)
	})

	if _, err := GetSingleton(context.Background(), "postgres://ignored", DefaultLambdaOptions()); err == nil {
		t.Fatalf("expected first call to fail")
	}
	db, err := GetSingleton(context.Background(), "postgres://ignored", DefaultLambdaOptions())
	if err != nil || db == nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestConnectClosesPoolWhenPingFails(t *testing.T) {
	var mock sqlmock.Sqlmock
	withMockOpen(t, func(string, Options) (*sql.DB, error) {
		db, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		mock = m
		if err == nil {
			m.ExpectPing().WillReturnError(errors.New("down"))
			m.ExpectClose()
		}
		return db, err
	})

	if _, err := Connect(context.Background(), "postgres://ignored", DefaultServerOptions()); err == nil {
		t.Fatalf("expected ping failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	if _, err := Connect(context.Background(), " ", DefaultServerOptions()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")
	t.Setenv("DB_STATEMENT_TIMEOUT", "2s")
	t.Setenv("DB_APPLICATION_NAME", "vault-worker")

	opts := OptionsFromEnv(DefaultServerOptions())
	want := Options{
		MaxOpenConns:     7,
		MaxIdleConns:     3,
		ConnMaxLifetime:  20 * time.Minute,
		ConnMaxIdleTime:  45 * time.Second,
		PingTimeout:      time.Second,
		StatementTimeout: 2 * time.Second,
		ApplicationName:  "vault-worker",
	}
	if opts != want {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestOptionsFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("DB_STATEMENT_TIMEOUT", "soon")

	defaults := DefaultLambdaOptions()
	if got := OptionsFromEnv(defaults); got != defaults {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestConnConfigSetsSessionParams(t *testing.T) {
	cfg, err := connConfig("postgres://vault:pw@localhost:5432/vault?sslmode=disable", Options{StatementTimeout: 1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("connConfig: %v", err)
	}
	if got := cfg.RuntimeParams["statement_timeout"]; got != "1500" {
		t.Fatalf("statement_timeout = %q", got)
	}
	if got := cfg.RuntimeParams["application_name"]; got != defaultApplicationName {
		t.Fatalf("application_name = %q", got)
	}

	cfg, err = connConfig("postgres://localhost/vault", DefaultMigrateOptions())
	if err != nil {
		t.Fatalf("connConfig: %v", err)
	}
	if _, ok := cfg.RuntimeParams["statement_timeout"]; ok {
		t.Fatalf("migrations should not set a statement timeout")
	}
}

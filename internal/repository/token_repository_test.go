package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/iliyamo/project-tracker/internal/utils"
)

func TestTokenBlacklistBlacklistAndCheck(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	bl := NewTokenBlacklist(rdb, "bl")
	key := "bl:" + utils.HashToken("tok")

	mock.ExpectSet(key, blacklistValue, 90*time.Second).SetVal("OK")
	mock.ExpectExists(key).SetVal(1)
	mock.ExpectExists("bl:" + utils.HashToken("other")).SetVal(0)

	ctx := context.Background()
	if err := bl.Blacklist(ctx, "tok", 90*time.Second); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	ok, err := bl.IsBlacklisted(ctx, "tok")
	if err != nil || !ok {
		t.Fatalf("expected blacklisted, got %v %v", ok, err)
	}
	ok, err = bl.IsBlacklisted(ctx, "other")
	if err != nil || ok {
		t.Fatalf("expected not blacklisted, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenBlacklistExpiredTokenIsNoop(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	bl := NewTokenBlacklist(rdb, "")
	if err := bl.Blacklist(context.Background(), "tok", 0); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no redis call expected: %v", err)
	}
}

func TestTokenBlacklistPropagatesStoreErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	bl := NewTokenBlacklist(rdb, "bl")
	boom := errors.New("connection refused")
	mock.ExpectExists("bl:" + utils.HashToken("tok")).SetErr(boom)

	if _, err := bl.IsBlacklisted(context.Background(), "tok"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestTokenBlacklistConsumeOnce(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	bl := NewTokenBlacklist(rdb, "bl")
	key := "bl:" + utils.HashToken("refresh")

	mock.ExpectSetNX(key, blacklistValue, time.Hour).SetVal(true)
	mock.ExpectSetNX(key, blacklistValue, time.Hour).SetVal(false)

	ctx := context.Background()
	first, err := bl.Consume(ctx, "refresh", time.Hour)
	if err != nil || !first {
		t.Fatalf("first consume = %v, %v", first, err)
	}
	second, err := bl.Consume(ctx, "refresh", time.Hour)
	if err != nil || second {
		t.Fatalf("second consume = %v, %v", second, err)
	}
	if ok, _ := bl.Consume(ctx, "refresh", 0); ok {
		t.Fatalf("expired token must not be consumable")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// markPattern pins the single conditional UPDATE with a strict < on the threshold.
const markPattern = `^UPDATE "clients" SET "last_notified_at"=\$1 WHERE \(?client_id = \$2 AND \(last_notified_at IS NULL OR last_notified_at < \$3\)\)?$`

func newMockCooldownStore(t *testing.T) (*PostgresCooldownStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return &PostgresCooldownStore{db: db}, mock
}

func TestPostgresCooldownStoreIssuesOneConditionalUpdate(t *testing.T) {
	now := time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Minute

	cases := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"row updated wins", 1, true},
		{"no row updated loses", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockCooldownStore(t)
			mock.ExpectBegin()
			mock.ExpectExec(markPattern).
				WithArgs(now, "C1", now.Add(-cooldown)).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))
			mock.ExpectCommit()

			got, err := s.CompareAndMark(context.Background(), "C1", now, cooldown)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("statement mismatch: %v", err)
			}
		})
	}
}

func TestPostgresCooldownStoreBoundaryIsStrict(t *testing.T) {
	re := regexp.MustCompile(markPattern)
	inclusive := `UPDATE "clients" SET "last_notified_at"=$1 WHERE (client_id = $2 AND (last_notified_at IS NULL OR last_notified_at <= $3))`
	if re.MatchString(inclusive) {
		t.Fatalf("an inclusive comparison must not satisfy the pattern")
	}

	// a mark made exactly one cooldown ago fails the strict comparison

	now := time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC)
	s, mock := newMockCooldownStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(markPattern).
		WithArgs(now, "C1", now.Add(-time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if ok, err := s.CompareAndMark(context.Background(), "C1", now, time.Minute); ok || err != nil {
		t.Fatalf("mark at the threshold should lose, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("statement mismatch: %v", err)
	}
}

func TestPostgresCooldownStoreFailsClosed(t *testing.T) {
	now := time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC)
	s, mock := newMockCooldownStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(markPattern).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	ok, err := s.CompareAndMark(context.Background(), "C1", now, time.Minute)
	if ok || err == nil {
		t.Fatalf("store error must not acquire, got %v %v", ok, err)
	}
}

package messages

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var messageCols = []string{"id", "capsule_id", "creator_id", "text", "filename", "created_at"}

func strPtr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	q := `(?s)^INSERT\s+INTO\s+messages\s*\(capsule_id,\s*creator_id,\s*text,\s*filename\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id,\s*created_at$`

	t.Run("text only", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).
			WithArgs(int64(1), int64(2), "hello", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), time.Now()))

		got, err := repo.Create(context.Background(), &models.Message{CapsuleID: 1, CreatorID: 2, Text: strPtr("hello")})
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.ID)
		assert.Nil(t, got.Filename)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("file only", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).
			WithArgs(int64(1), int64(2), nil, "capsules/2030/1/1/x_a.png").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(6), time.Now()))

		_, err := repo.Create(context.Background(), &models.Message{CapsuleID: 1, CreatorID: 2, Filename: strPtr("capsules/2030/1/1/x_a.png")})
		require.NoError(t, err)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WillReturnError(errors.New("check violation"))
		_, err := repo.Create(context.Background(), &models.Message{CapsuleID: 1, CreatorID: 2})
		require.Error(t, err)
		assert.Regexp(t, regexp.MustCompile(`db error: .*check violation`), err.Error())
	})
}

func TestGet_ScopedByCapsule(t *testing.T) {
	q := `(?s)^SELECT\s+id,.*FROM\s+messages\s+WHERE\s+id\s*=\s*\$1\s+AND\s+capsule_id\s*=\s*\$2$`

	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(q).WithArgs(int64(9), int64(1)).WillReturnRows(
		sqlmock.NewRows(messageCols).AddRow(int64(9), int64(1), int64(2), nil, "f.txt", time.Now()))

	got, err := repo.Get(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.Nil(t, got.Text)
	require.NotNil(t, got.Filename)
	assert.Equal(t, "f.txt", *got.Filename)

	mock.ExpectQuery(q).WithArgs(int64(9), int64(3)).WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), 3, 9)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListByCapsule_KeepsOrder(t *testing.T) {
	q := `(?s)^SELECT\s+id,.*FROM\s+messages\s+WHERE\s+capsule_id\s*=\s*\$1\s+ORDER\s+BY\s+id$`

	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnRows(
		sqlmock.NewRows(messageCols).
			AddRow(int64(1), int64(1), int64(2), "a", nil, time.Now()).
			AddRow(int64(2), int64(1), int64(3), "b", nil, time.Now()).
			AddRow(int64(4), int64(1), int64(2), nil, "c.bin", time.Now()))

	got, err := repo.ListByCapsule(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 4}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestListByCapsule_EmptyIsNotNil(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+messages`).WillReturnRows(sqlmock.NewRows(messageCols))

	got, err := repo.ListByCapsule(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUpdate(t *testing.T) {
	q := `(?s)^UPDATE\s+messages\s+SET\s+text\s*=\s*\$3,\s*filename\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1\s+AND\s+capsule_id\s*=\s*\$2$`

	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(q).WithArgs(int64(9), int64(1), "new", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), &models.Message{ID: 9, CapsuleID: 1, Text: strPtr("new")}))

	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), &models.Message{ID: 9, CapsuleID: 2}), common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	q := `(?s)^DELETE\s+FROM\s+messages\s+WHERE\s+id\s*=\s*\$1\s+AND\s+capsule_id\s*=\s*\$2$`

	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(q).WithArgs(int64(9), int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), 1, 9))

	mock.ExpectExec(q).WithArgs(int64(9), int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), 1, 9), common.ErrorNotFound)

	mock.ExpectExec(q).WillReturnError(errors.New("boom"))
	err := repo.Delete(context.Background(), 1, 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: boom")
}

func TestFilenamesByCapsule(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+filename\s+FROM\s+messages\s+WHERE\s+capsule_id\s*=\s*\$1\s+AND\s+filename\s+IS\s+NOT\s+NULL`
	mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnRows(
		sqlmock.NewRows([]string{"filename"}).AddRow("a").AddRow("b"))

	got, err := repo.FilenamesByCapsule(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestFilenamesByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+m\.filename\s+FROM\s+messages\s+m\s+JOIN\s+capsules\s+c.*m\.creator_id\s*=\s*\$1\s+OR\s+c\.owner_id\s*=\s*\$1`
	mock.ExpectQuery(q).WithArgs(int64(2)).WillReturnRows(
		sqlmock.NewRows([]string{"filename"}).AddRow("mine").AddRow("in-my-capsule"))

	got, err := repo.FilenamesByUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine", "in-my-capsule"}, got)

	mock.ExpectQuery(q).WillReturnError(errors.New("db err"))
	_, err = repo.FilenamesByUser(context.Background(), 2)
	require.Error(t, err)
}

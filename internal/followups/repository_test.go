package followups

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkScheduledOnlySettlesPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	apptID := uuid.New()
	repo := NewRepositoryWithDB(mock)

	mock.ExpectExec("UPDATE follow_up_suggestions").
		WithArgs(StatusScheduled, apptID, id, StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE follow_up_suggestions").
		WithArgs(StatusScheduled, apptID, id, StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkScheduled(context.Background(), id, apptID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkScheduled(context.Background(), id, apptID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDReturnsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)
	mock.ExpectQuery("SELECT .* FROM follow_up_suggestions").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditIncrementsBalanceAndAppendsTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	repo := NewRepositoryWithDB(mock)

	mock.ExpectExec("UPDATE users").
		WithArgs(int64(300_000), userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(pgxmock.AnyArg(), userID, int64(300_000), KindRefund, (*uuid.UUID)(nil), "consultation fee refund").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Credit(context.Background(), userID, 300_000, KindRefund, nil, "consultation fee refund")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditUnknownUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1000), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Credit(context.Background(), uuid.New(), 1000, KindTopup, nil, "")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestDebitRequiresSufficientBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(500_000), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Debit(context.Background(), uuid.New(), 500_000, KindPayment, nil, "consultation fee")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)
	err = repo.Debit(context.Background(), uuid.New(), -5, KindPayment, nil, "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientBalance)
}

func TestDebitRecordsNegativeAmount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	paymentID := uuid.New()
	repo := NewRepositoryWithDB(mock)

	mock.ExpectExec("UPDATE users").
		WithArgs(int64(285_000), userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(pgxmock.AnyArg(), userID, int64(-285_000), KindRefund, &paymentID, "refund reversal").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Debit(context.Background(), userID, 285_000, KindRefund, &paymentID, "refund reversal")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

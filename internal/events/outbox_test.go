package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerStub struct {
	delivered []OutboxEntry
	failType  string
}

func (h *handlerStub) Handle(_ context.Context, entry OutboxEntry) error {
	if h.failType != "" && entry.Type == h.failType {
		return errors.New("client gone")
	}
	h.delivered = append(h.delivered, entry)
	return nil
}

func TestDrainDeliversAndMarks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	userID := uuid.New()
	mock.ExpectQuery("SELECT .* FROM outbox").
		WithArgs(int32(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "type", "payload", "created_at"}).
			AddRow(id, userID, TypeAppointmentConfirmed, []byte(`{"appointmentId":"x"}`), time.Now()))
	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	h := &handlerStub{}
	d := NewDeliverer(NewOutboxStoreWithDB(mock), h, nil).WithBatchSize(1)
	d.drain(context.Background())

	require.Len(t, h.delivered, 1)
	assert.Equal(t, TypeAppointmentConfirmed, h.delivered[0].Type)
	assert.Equal(t, userID, h.delivered[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainLeavesFailedDeliveryPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .* FROM outbox").
		WithArgs(int32(25)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "type", "payload", "created_at"}).
			AddRow(uuid.New(), uuid.New(), TypePaymentNew, []byte(`{}`), time.Now()))

	h := &handlerStub{failType: TypePaymentNew}
	d := NewDeliverer(NewOutboxStoreWithDB(mock), h, nil)
	d.drain(context.Background())

	assert.Empty(t, h.delivered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmitSwallowsStoreFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), TypeWalletCredited, pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	e := NewEmitter(NewOutboxStoreWithDB(mock), nil)
	e.Emit(context.Background(), uuid.New(), TypeWalletCredited, map[string]any{"amount": 500_000})

	assert.NoError(t, mock.ExpectationsWereMet())
}

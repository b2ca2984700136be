package vouchers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	byCode   map[string]*Voucher
	inserted []*Voucher
	used     []uuid.UUID
}

func newStubStore() *stubStore {
	return &stubStore{byCode: make(map[string]*Voucher)}
}

func (s *stubStore) Insert(_ context.Context, v *Voucher) error {
	s.inserted = append(s.inserted, v)
	s.byCode[v.Code] = v
	return nil
}

func (s *stubStore) GetByCode(_ context.Context, code string) (*Voucher, error) {
	v, ok := s.byCode[code]
	if !ok {
		return nil, ErrVoucherNotFound
	}
	return v, nil
}

func (s *stubStore) MarkUsed(_ context.Context, id uuid.UUID) (bool, error) {
	s.used = append(s.used, id)
	return true, nil
}

func TestApplyPercentageDiscount(t *testing.T) {
	store := newStubStore()
	patientID := uuid.New()
	store.byCode["DENTAL-TEST"] = &Voucher{
		ID:        uuid.New(),
		Code:      "DENTAL-TEST",
		PatientID: patientID,
		Type:      TypePercentage,
		Value:     10,
	}
	svc := NewService(store, nil)

	result, err := svc.Apply(context.Background(), "DENTAL-TEST", patientID, 300_000)
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), result.DiscountAmount)
	assert.Equal(t, int64(270_000), result.DiscountedAmount)
	assert.Empty(t, store.used, "apply must not consume the voucher")
}

func TestApplyFixedDiscountCapsAtAmount(t *testing.T) {
	store := newStubStore()
	patientID := uuid.New()
	store.byCode["DENTAL-BIG"] = &Voucher{
		ID:        uuid.New(),
		Code:      "DENTAL-BIG",
		PatientID: patientID,
		Type:      TypeFixed,
		Value:     500_000,
	}
	svc := NewService(store, nil)

	result, err := svc.Apply(context.Background(), "DENTAL-BIG", patientID, 200_000)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), result.DiscountAmount)
	assert.Zero(t, result.DiscountedAmount)
}

func TestApplyRejections(t *testing.T) {
	store := newStubStore()
	owner := uuid.New()
	expired := time.Now().Add(-time.Hour)
	store.byCode["USED"] = &Voucher{ID: uuid.New(), Code: "USED", PatientID: owner, Type: TypeFixed, Value: 10, IsUsed: true}
	store.byCode["EXPIRED"] = &Voucher{ID: uuid.New(), Code: "EXPIRED", PatientID: owner, Type: TypeFixed, Value: 10, ExpiresAt: &expired}
	svc := NewService(store, nil)

	_, err := svc.Apply(context.Background(), "MISSING", owner, 100)
	assert.ErrorIs(t, err, ErrVoucherNotFound)

	_, err = svc.Apply(context.Background(), "USED", owner, 100)
	assert.ErrorIs(t, err, ErrVoucherUsed)

	_, err = svc.Apply(context.Background(), "EXPIRED", owner, 100)
	assert.ErrorIs(t, err, ErrVoucherExpired)

	_, err = svc.Apply(context.Background(), "USED", uuid.New(), 100)
	assert.ErrorIs(t, err, ErrVoucherNotOwned)
}

func TestIssueGeneratesCodeAndExpiry(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)
	patientID := uuid.New()
	apptID := uuid.New()

	v, err := svc.Issue(context.Background(), patientID, TypePercentage, 10, "auto-reject compensation", 30*24*time.Hour, &apptID)
	require.NoError(t, err)
	assert.NotEmpty(t, v.Code)
	assert.NotNil(t, v.ExpiresAt)
	assert.Equal(t, patientID, v.PatientID)
	require.Len(t, store.inserted, 1)
}

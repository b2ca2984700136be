package vouchers

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type voucherStore interface {
	Insert(ctx context.Context, v *Voucher) error
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service computes discounts and issues compensation vouchers.
type Service struct {
	store  voucherStore
	logger *logging.Logger
	now    func() time.Time
}

// NewService constructs a voucher service.
func NewService(store voucherStore, logger *logging.Logger) *Service {
	if store == nil {
		panic("vouchers: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Apply computes the discount a voucher yields on amount. It never consumes
// the voucher: consumption happens separately once the discounted appointment
// is confirmed, so a booking that fails does not burn the voucher.
func (s *Service) Apply(ctx context.Context, code string, patientID uuid.UUID, amount int64) (*ApplyResult, error) {
	v, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if v.PatientID != patientID {
		return nil, ErrVoucherNotOwned
	}
	if v.IsUsed {
		return nil, ErrVoucherUsed
	}
	if v.ExpiresAt != nil && v.ExpiresAt.Before(s.now()) {
		return nil, ErrVoucherExpired
	}

	var discount int64
	switch v.Type {
	case TypePercentage:
		discount = amount * v.Value / 100
	case TypeFixed:
		discount = v.Value
	default:
		return nil, fmt.Errorf("vouchers: unknown type %q", v.Type)
	}
	if discount > amount {
		discount = amount
	}

	return &ApplyResult{
		VoucherID:        v.ID,
		DiscountAmount:   discount,
		DiscountedAmount: amount - discount,
	}, nil
}

// MarkUsed consumes a voucher after the discounted appointment is confirmed.
// A voucher that was already consumed is a no-op.
func (s *Service) MarkUsed(ctx context.Context, id uuid.UUID) error {
	consumed, err := s.store.MarkUsed(ctx, id)
	if err != nil {
		return err
	}
	if !consumed {
		s.logger.Debug("voucher already consumed", "voucher_id", id)
	}
	return nil
}

// Issue creates a voucher for a patient, typically as compensation for a
// system cancellation or as a follow-up discount.
func (s *Service) Issue(ctx context.Context, patientID uuid.UUID, vtype Type, value int64, reason string, validFor time.Duration, relatedAppointmentID *uuid.UUID) (*Voucher, error) {
	v := &Voucher{
		ID:                   uuid.New(),
		Code:                 generateCode(),
		PatientID:            patientID,
		Type:                 vtype,
		Value:                value,
		Reason:               reason,
		RelatedAppointmentID: relatedAppointmentID,
	}
	if validFor > 0 {
		expires := s.now().Add(validFor)
		v.ExpiresAt = &expires
	}
	if err := s.store.Insert(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info("voucher issued", "voucher_id", v.ID, "patient_id", patientID, "type", vtype, "value", value)
	return v, nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateCode() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "DENTAL-" + uuid.New().String()[:8]
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return "DENTAL-" + string(b)
}

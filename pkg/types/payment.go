package types

// PaymentStatus tracks a payment attempt through the three-callback
// protocol driven by the Pi client runtime.
type PaymentStatus string

const (
	PaymentStatusCreated           PaymentStatus = "created"
	PaymentStatusPendingApproval   PaymentStatus = "pending_approval"
	PaymentStatusApproved          PaymentStatus = "approved"
	PaymentStatusPendingCompletion PaymentStatus = "pending_completion"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusFailed            PaymentStatus = "failed"
)

// Terminal reports whether the attempt can make no further progress.
// After a terminal status the session's in-flight slot is freed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled || s == PaymentStatusFailed
}

type DonationStatus string

const (
	// DonationStatusPending exists in the schema for future use; the
	// completion flow only ever writes completed records.
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
)

type SellerApplicationStatus string

const (
	SellerApplicationStatusPending  SellerApplicationStatus = "pending"
	SellerApplicationStatusApproved SellerApplicationStatus = "approved"
	SellerApplicationStatusRejected SellerApplicationStatus = "rejected"
)

package domain

type ConflictType string

const (
	ConflictNone                   ConflictType = "NONE"
	ConflictBlockedDate            ConflictType = "BLOCKED_DATE"
	ConflictTimeOverlap            ConflictType = "TIME_OVERLAP"
	ConflictMinimumNoticeViolation ConflictType = "MINIMUM_NOTICE_VIOLATION"

	// ConflictReservationLapsed is never detected; it is the refund reason for
	// a payment that settled after its reservation expired or failed.
	ConflictReservationLapsed ConflictType = "RESERVATION_LAPSED"
)

type ConflictResult struct {
	HasConflict bool
	Type        ConflictType
	Detail      string
}

func NoConflict() ConflictResult {
	return ConflictResult{Type: ConflictNone}
}

func Conflict(t ConflictType, detail string) ConflictResult {
	return ConflictResult{HasConflict: true, Type: t, Detail: detail}
}

package schema

const (
	MergePending  = "pending"
	MergeAccepted = "accepted"
	MergeRejected = "rejected"
)

func IsValidMergeStatus(status string) bool {
	switch status {
	case MergePending, MergeAccepted, MergeRejected:
		return true
	default:
		return false
	}
}

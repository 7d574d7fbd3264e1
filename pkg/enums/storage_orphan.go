package enums

import "fmt"

// OrphanReason records why an object was left in storage without a matching row.
type OrphanReason string

const (
	OrphanReasonCommitCompensation OrphanReason = "commit_compensation"
	OrphanReasonUploadAbandoned    OrphanReason = "upload_abandoned"
	OrphanReasonGalleryDelete      OrphanReason = "gallery_delete"
)

var validOrphanReasons = []OrphanReason{
	OrphanReasonCommitCompensation,
	OrphanReasonUploadAbandoned,
	OrphanReasonGalleryDelete,
}

func (r OrphanReason) String() string {
	return string(r)
}

func (r OrphanReason) IsValid() bool {
	for _, candidate := range validOrphanReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseOrphanReason converts raw input into OrphanReason.
func ParseOrphanReason(value string) (OrphanReason, error) {
	for _, candidate := range validOrphanReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid orphan reason %q", value)
}

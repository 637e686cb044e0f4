package models

// Location types accepted in an archive request. A "download" location
// points at a third-party URL, a "retrieve" location points at an object
// held in the training data store.
const (
	LocationTypeDownload = "download"
	LocationTypeRetrieve = "retrieve"
)

// StorageSpec addresses one stored object. The four fields combine into
// the hierarchical object key; there is no secondary index.
type StorageSpec struct {
	ObjectID  string `json:"objectid"`
	ProjectID string `json:"projectid"`
	UserID    string `json:"userid"`
	ClassID   string `json:"classid"`
}

// Location describes where to obtain one training image. Exactly one
// variant must be populated: Spec for "retrieve", ImageID+URL for
// "download".
type Location struct {
	Type    string       `json:"type"`
	Spec    *StorageSpec `json:"spec,omitempty"`
	ImageID string       `json:"imageid,omitempty"`
	URL     string       `json:"url,omitempty"`
}

func (l *Location) IsValid() bool {
	if l == nil {
		return false
	}
	switch l.Type {
	case LocationTypeDownload:
		return l.ImageID != "" && l.URL != ""
	case LocationTypeRetrieve:
		return l.Spec != nil &&
			l.Spec.ObjectID != "" &&
			l.Spec.ProjectID != "" &&
			l.Spec.UserID != "" &&
			l.Spec.ClassID != ""
	default:
		return false
	}
}

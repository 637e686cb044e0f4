package models

// StoreCredentials carries everything needed to construct an object store
// client for one request. Credentials are request-scoped and never
// persisted.
type StoreCredentials struct {
	Endpoint          string `json:"endpoint"`
	APIKeyID          string `json:"apiKeyId"`
	AuthEndpoint      string `json:"authEndpoint"`
	ServiceInstanceID string `json:"serviceInstanceId"`
}

// StoreInfo identifies the bucket and credentials for the training data
// store.
type StoreInfo struct {
	BucketID    string           `json:"bucketid"`
	Credentials StoreCredentials `json:"credentials"`
}

// CreateZipRequest is the payload for the archive pipeline: a batch of
// image locations plus the store the "retrieve" locations live in.
type CreateZipRequest struct {
	Locations  []Location `json:"locations"`
	ImageStore StoreInfo  `json:"imagestore"`
}

func (c StoreCredentials) isComplete() bool {
	return c.Endpoint != "" &&
		c.APIKeyID != "" &&
		c.AuthEndpoint != "" &&
		c.ServiceInstanceID != ""
}

// IsValid reports whether the request is safe to run. The check is
// all-or-nothing: at least one location, every location well-formed, and
// complete store credentials. No I/O happens here.
func (r *CreateZipRequest) IsValid() bool {
	if r == nil || len(r.Locations) == 0 {
		return false
	}
	for i := range r.Locations {
		if !r.Locations[i].IsValid() {
			return false
		}
	}
	return r.ImageStore.BucketID != "" && r.ImageStore.Credentials.isComplete()
}

// ResizeRequest is the payload for the standalone resize endpoint and for
// remote resize worker invocations.
type ResizeRequest struct {
	URL string `json:"url"`
}

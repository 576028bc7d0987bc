package survey

import (
	"context"
	"io"

	"github.com/jonathan/onboarding-survey/internal/types"
)

// Submitter durably records a completed survey. Submit is all-or-nothing.
type Submitter interface {
	Submit(ctx context.Context, sub types.Submission) (types.SubmitReceipt, error)
}

// SessionStore reads and writes the signed-in user's record.
// Read returns (nil, nil) when no record exists.
type SessionStore interface {
	Read(ctx context.Context) (*types.UserRecord, error)
	Write(ctx context.Context, rec types.UserRecord) error
}

// DraftStore persists advisory survey drafts. Load returns (nil, nil) for a missing key.
type DraftStore interface {
	Save(ctx context.Context, key string, blob []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Uploader stores a portfolio file, reporting progress as a percentage in [0,100].
type Uploader interface {
	Upload(ctx context.Context, file types.PortfolioFile, r io.Reader, onProgress func(pct int)) (types.UploadReceipt, error)
}

// PlatformConnector looks up a user's public profile on one external platform.
type PlatformConnector interface {
	Platform() types.Platform
	Lookup(ctx context.Context, username string) (types.PlatformConnection, error)
}

// DraftKey is the DraftStore key for a user's draft.
func DraftKey(userID string) string {
	return "survey_draft:" + userID
}

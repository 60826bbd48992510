package store

import (
	"context"
	"time"

	"github.com/rendis/flowdesk/pkg/schema"
)

// Store defines the local persistence contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Drafts
	SaveDraft(ctx context.Context, draft *Draft) error
	GetDraft(ctx context.Context, flowID string) (*Draft, error)
	ListDrafts(ctx context.Context, filter DraftFilter) ([]*DraftSummary, error)
	DeleteDraft(ctx context.Context, flowID string) error
	PruneDrafts(ctx context.Context, before time.Time) ([]string, error)

	// Editor event log (append-only)
	AppendEvent(ctx context.Context, event *schema.EditorEvent) error
	ListEvents(ctx context.Context, flowID string, since int64) ([]*schema.EditorEvent, error)
	DeleteEvents(ctx context.Context, flowID string) (int64, error)

	// Version cache
	CacheVersions(ctx context.Context, versions []schema.FlowVersion) error
	ListCachedVersions(ctx context.Context, flowID string) ([]schema.FlowVersion, error)
	GetCachedVersion(ctx context.Context, id string) (*schema.FlowVersion, error)

	// Credentials
	PutCredential(ctx context.Context, name string, ciphertext, nonce []byte) error
	GetCredential(ctx context.Context, name string) (ciphertext, nonce []byte, err error)
	DeleteCredential(ctx context.Context, name string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

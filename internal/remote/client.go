// Package remote mirrors derived settings (rules, the extraction profile)
// to Firestore. Local state is always the read path; the mirror is a
// best-effort, debounced write-behind.
package remote

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const settingsCollection = "ledger-settings"

// Client wraps Firestore with settings-mirror operations.
type Client struct {
	Firestore *firestore.Client
	projectID string
}

// NewClient creates a Firestore-backed settings client. Credentials come
// from the environment (Application Default Credentials) unless credsPath
// names a service account file.
func NewClient(ctx context.Context, projectID, credsPath string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client.
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// SettingsDoc is one mirrored settings document. Payload is the JSON
// encoding of the local value; Revision increments on every publish.
type SettingsDoc struct {
	UserID    string    `firestore:"userId"`
	Kind      string    `firestore:"kind"` // "rules", "profile", "report"
	Payload   []byte    `firestore:"payload"`
	Revision  int64     `firestore:"revision"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// Validate checks the document before publishing.
func (d *SettingsDoc) Validate() error {
	if d.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if d.Kind == "" {
		return fmt.Errorf("settings kind is required")
	}
	return nil
}

func docID(userID, kind string) string {
	return fmt.Sprintf("%s-%s", userID, kind)
}

// Publish writes a settings document with an optimistic revision bump:
// read the current revision, increment, write. There is no retry loop on
// conflict; a concurrent bump elsewhere simply wins by being the last
// write physically committed.
func (c *Client) Publish(ctx context.Context, doc *SettingsDoc) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid settings doc: %w", err)
	}

	ref := c.Firestore.Collection(settingsCollection).Doc(docID(doc.UserID, doc.Kind))

	var current int64
	snap, err := ref.Get(ctx)
	if err == nil {
		var existing SettingsDoc
		if err := snap.DataTo(&existing); err == nil {
			current = existing.Revision
		}
	}

	doc.Revision = current + 1
	doc.UpdatedAt = time.Now()
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to publish %s settings: %w", doc.Kind, err)
	}
	return nil
}

// Fetch retrieves one settings document, reporting found=false when the
// user has never published that kind.
func (c *Client) Fetch(ctx context.Context, userID, kind string) (*SettingsDoc, bool, error) {
	snap, err := c.Firestore.Collection(settingsCollection).Doc(docID(userID, kind)).Get(ctx)
	if err != nil {
		// Get returns a usable snapshot only for NotFound; any other
		// error leaves snap nil.
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to fetch %s settings: %w", kind, err)
	}
	var doc SettingsDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s settings: %w", kind, err)
	}
	return &doc, true, nil
}

// List retrieves every settings document for a user.
func (c *Client) List(ctx context.Context, userID string) ([]*SettingsDoc, error) {
	iter := c.Firestore.Collection(settingsCollection).
		Where("userId", "==", userID).
		Documents(ctx)

	var docs []*SettingsDoc
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate settings for user %s: %w", userID, err)
		}

		var doc SettingsDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse settings doc: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

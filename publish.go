package mappack

import (
	"context"
	"fmt"
	"strings"

	"github.com/meigma/mappack/store"
)

// ContentTypeZip is the content type of published packs.
const ContentTypeZip = "application/zip"

// Publisher writes packs to a store and addresses them under a public base URL.
type Publisher struct {
	store   store.Store
	baseURL string
}

// NewPublisher creates a Publisher. A trailing slash on baseURL is ignored.
func NewPublisher(s store.Store, baseURL string) *Publisher {
	return &Publisher{store: s, baseURL: strings.TrimRight(baseURL, "/")}
}

// Publish stores data as "{key}.zip" and returns its public address.
// It does not check whether the object already exists.
func (p *Publisher) Publish(ctx context.Context, key ContentKey, data []byte) (string, error) {
	if err := p.store.Put(ctx, key.ObjectName(), data, ContentTypeZip); err != nil {
		return "", fmt.Errorf("publish %s: %w", key.ObjectName(), err)
	}
	return p.Address(key), nil
}

// Address returns the public address of the pack with the given key,
// "{base_url}/{key}.zip".
func (p *Publisher) Address(key ContentKey) string {
	return p.baseURL + "/" + key.ObjectName()
}

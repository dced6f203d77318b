package trace

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-yaml"
)

// Document is the exported form of a session.
type Document struct {
	Session SessionInfo `yaml:"session" json:"session"`
	Events  []Record    `yaml:"events" json:"events"`
}

// Load reads a session and its events from store.
func Load(ctx context.Context, store Store, id string) (*Document, error) {
	info, err := Session(ctx, store, id)
	if err != nil {
		return nil, err
	}
	events, err := Events(ctx, store, id)
	if err != nil {
		return nil, err
	}
	return &Document{Session: info, Events: events}, nil
}

// DocumentName is the archive name a session exports to.
func DocumentName(id string) string { return id + ".yaml" }

// Export writes the session as YAML into archive and returns its location.
func Export(ctx context.Context, store Store, id string, archive Archive) (string, error) {
	doc, err := Load(ctx, store, id)
	if err != nil {
		return "", err
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("trace: encode %s: %w", id, err)
	}
	name := DocumentName(id)
	if err := archive.Put(ctx, name, bytes.NewReader(b)); err != nil {
		return "", fmt.Errorf("trace: export %s: %w", id, err)
	}
	return archive.Location(name), nil
}

// Fetch reads an exported session back from archive.
func Fetch(ctx context.Context, archive Archive, id string) (*Document, error) {
	rc, err := archive.Get(ctx, DocumentName(id))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var doc Document
	if err := yaml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("trace: decode %s: %w", id, err)
	}
	return &doc, nil
}

package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
)

// ErrIndexNotFound is returned when writing to an index that does not exist.
var ErrIndexNotFound = errors.New("index not found")

// Documents writes documents into indices.
type Documents struct {
	client *es.Client
}

// NewDocuments wraps client.
func NewDocuments(client *es.Client) *Documents {
	return &Documents{client: client}
}

// EnsureIndex creates index with mapping unless it already exists.
func (d *Documents) EnsureIndex(ctx context.Context, index, mapping string) error {
	res, err := d.client.Indices.Exists([]string{index}, d.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: unexpected status %s", index, res.Status())
	}

	res, err = d.client.Indices.Create(
		index,
		d.client.Indices.Create.WithContext(ctx),
		d.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if bytes.Contains(body, []byte("resource_already_exists_exception")) {
			return nil
		}
		return fmt.Errorf("create index %s [%s]: %s", index, res.Status(), string(body))
	}
	return nil
}

// IndexDocument writes doc under id, replacing any previous version.
func (d *Documents) IndexDocument(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", id, err)
	}

	res, err := d.client.Index(
		index,
		bytes.NewReader(body),
		d.client.Index.WithContext(ctx),
		d.client.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("index document %s: %w: %s", id, ErrIndexNotFound, index)
	}
	if res.IsError() {
		respBody, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index document %s [%s]: %s", id, res.Status(), string(respBody))
	}
	return nil
}

// Package assets defines the preloader's domain entities: manifest items,
// loaded assets and the outcome of a preload batch.
package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ItemType is the tag carried by every manifest entry.
type ItemType string

const (
	ItemTypeImage ItemType = "image"
	ItemTypeJSON  ItemType = "json"
)

// DefaultCrossOrigin is applied to image items that do not declare one.
const DefaultCrossOrigin = "anonymous"

// Item is one manifest entry. The set of implementations is closed:
// ImageItem, JSONItem, UnknownItem and InvalidItem.
type Item interface {
	ItemID() string
	ItemURL() string
	Type() ItemType
	isItem()
}

type ImageItem struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	CrossOrigin string `json:"crossOrigin,omitempty"`
}

func (i ImageItem) ItemID() string  { return i.ID }
func (i ImageItem) ItemURL() string { return i.URL }
func (i ImageItem) Type() ItemType  { return ItemTypeImage }
func (ImageItem) isItem()           {}

type JSONItem struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (i JSONItem) ItemID() string  { return i.ID }
func (i JSONItem) ItemURL() string { return i.URL }
func (i JSONItem) Type() ItemType  { return ItemTypeJSON }
func (JSONItem) isItem()           {}

// UnknownItem holds an entry whose tag is outside the known set. It is kept
// so the batch can report it as failed against its id.
type UnknownItem struct {
	ID      string          `json:"id"`
	URL     string          `json:"url"`
	RawType string          `json:"type"`
	Raw     json.RawMessage `json:"-"`
}

func (i UnknownItem) ItemID() string  { return i.ID }
func (i UnknownItem) ItemURL() string { return i.URL }
func (i UnknownItem) Type() ItemType  { return ItemType(i.RawType) }
func (UnknownItem) isItem()           {}

// InvalidItem stands in for an entry that could not be decoded. ID is the
// entry's own id when it is a string, otherwise its position as "#<index>".
type InvalidItem struct {
	ID  string
	Err error
}

func (i InvalidItem) ItemID() string  { return i.ID }
func (i InvalidItem) ItemURL() string { return "" }
func (i InvalidItem) Type() ItemType  { return "" }
func (InvalidItem) isItem()           {}

// Manifest is the ordered list of items to preload.
type Manifest struct {
	Items []Item
}

// EmptyManifest returns a manifest with no items.
func EmptyManifest() *Manifest {
	return &Manifest{Items: []Item{}}
}

// Len is nil-safe.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Items)
}

type itemHeader struct {
	ID          string   `json:"id"`
	Type        ItemType `json:"type"`
	URL         string   `json:"url"`
	CrossOrigin *string  `json:"crossOrigin"`
}

// UnmarshalJSON decodes {"items":[...]} into typed items. An entry that does
// not decode becomes an InvalidItem so its siblings still load.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var doc struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	items := make([]Item, 0, len(doc.Items))
	for i, raw := range doc.Items {
		item, err := ParseItem(raw)
		if err != nil {
			item = InvalidItem{
				ID:  recoverID(raw, i),
				Err: fmt.Errorf("%w: manifest item %d: %w", ErrInvalidItem, i, err),
			}
		}
		items = append(items, item)
	}
	m.Items = items
	return nil
}

// MarshalJSON writes the manifest back in its document form.
func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(m.Items))
	for _, item := range m.Items {
		if _, ok := item.(InvalidItem); ok {
			continue
		}
		entry := map[string]any{
			"id":   item.ItemID(),
			"type": item.Type(),
			"url":  item.ItemURL(),
		}
		if img, ok := item.(ImageItem); ok && img.CrossOrigin != "" {
			entry["crossOrigin"] = img.CrossOrigin
		}
		out = append(out, entry)
	}
	return json.Marshal(map[string]any{"items": out})
}

// ParseItem decodes a single manifest entry, dispatching on its type tag.
func ParseItem(raw json.RawMessage) (Item, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("empty item")
	}

	var h itemHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}

	switch h.Type {
	case ItemTypeImage:
		crossOrigin := DefaultCrossOrigin
		if h.CrossOrigin != nil {
			crossOrigin = *h.CrossOrigin
		}
		return ImageItem{ID: h.ID, URL: h.URL, CrossOrigin: crossOrigin}, nil
	case ItemTypeJSON:
		return JSONItem{ID: h.ID, URL: h.URL}, nil
	default:
		return UnknownItem{ID: h.ID, URL: h.URL, RawType: string(h.Type), Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func recoverID(raw json.RawMessage, index int) string {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) == nil {
		var id string
		if json.Unmarshal(fields["id"], &id) == nil && id != "" {
			return id
		}
	}
	return fmt.Sprintf("#%d", index)
}

// DuplicateIDs lists ids declared more than once, in first-seen order.
func (m *Manifest) DuplicateIDs() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]int, len(m.Items))
	var dups []string
	for _, item := range m.Items {
		id := item.ItemID()
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}

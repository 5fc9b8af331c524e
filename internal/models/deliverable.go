package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidDeliverable = errors.New("invalid deliverable")

type DeliverableKind string

const (
	DeliverableLink DeliverableKind = "link"
	DeliverableFile DeliverableKind = "file"
	DeliverableNote DeliverableKind = "note"
)

// Deliverable is a closed set: LinkDeliverable, FileDeliverable and
// NoteDeliverable are the only implementations.
type Deliverable interface {
	Kind() DeliverableKind
	validate() error
}

type LinkDeliverable struct {
	URL   string
	Label string
}

type FileDeliverable struct {
	Key   string
	Label string
}

type NoteDeliverable struct {
	Text string
}

func (LinkDeliverable) Kind() DeliverableKind { return DeliverableLink }
func (FileDeliverable) Kind() DeliverableKind { return DeliverableFile }
func (NoteDeliverable) Kind() DeliverableKind { return DeliverableNote }

func (d LinkDeliverable) validate() error {
	u, err := url.Parse(d.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: link must be an absolute http(s) url", ErrInvalidDeliverable)
	}
	return nil
}

func (d FileDeliverable) validate() error {
	if strings.TrimSpace(d.Key) == "" {
		return fmt.Errorf("%w: file deliverable requires a key", ErrInvalidDeliverable)
	}
	return nil
}

func (d NoteDeliverable) validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("%w: note must not be empty", ErrInvalidDeliverable)
	}
	return nil
}

type deliverableWire struct {
	Kind  DeliverableKind `json:"kind"`
	URL   string          `json:"url,omitempty"`
	Key   string          `json:"key,omitempty"`
	Label string          `json:"label,omitempty"`
	Text  string          `json:"text,omitempty"`
}

// ParseDeliverables decodes a JSON array of tagged deliverables. Unknown
// kinds and malformed entries are rejected rather than coerced.
func ParseDeliverables(raw []byte) ([]Deliverable, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var wire []deliverableWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeliverable, err)
	}

	out := make([]Deliverable, 0, len(wire))
	for i, w := range wire {
		var d Deliverable
		switch w.Kind {
		case DeliverableLink:
			d = LinkDeliverable{URL: strings.TrimSpace(w.URL), Label: w.Label}
		case DeliverableFile:
			d = FileDeliverable{Key: strings.TrimSpace(w.Key), Label: w.Label}
		case DeliverableNote:
			d = NoteDeliverable{Text: w.Text}
		default:
			return nil, fmt.Errorf("%w: entry %d has unknown kind %q", ErrInvalidDeliverable, i, w.Kind)
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func MarshalDeliverables(items []Deliverable) ([]byte, error) {
	wire := make([]deliverableWire, 0, len(items))
	for _, item := range items {
		switch d := item.(type) {
		case LinkDeliverable:
			wire = append(wire, deliverableWire{Kind: DeliverableLink, URL: d.URL, Label: d.Label})
		case FileDeliverable:
			wire = append(wire, deliverableWire{Kind: DeliverableFile, Key: d.Key, Label: d.Label})
		case NoteDeliverable:
			wire = append(wire, deliverableWire{Kind: DeliverableNote, Text: d.Text})
		default:
			return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidDeliverable, item)
		}
	}
	return json.Marshal(wire)
}

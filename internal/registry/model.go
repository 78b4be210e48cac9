package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MediaType tells the transport how to resend a stored file reference.
type MediaType string

const (
	// MediaNone marks a payload that is a plain link.
	MediaNone MediaType = ""
	// MediaVideo marks a Telegram video file id.
	MediaVideo MediaType = "video"
	// MediaDocument marks a Telegram document file id.
	MediaDocument MediaType = "document"
)

// Movie is a lookup entry keyed by Code.
type Movie struct {
	Code      string    `json:"code"`
	Payload   string    `json:"payload"`
	MediaType MediaType `json:"media_type,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Rating    *float64  `json:"rating,omitempty"`
}

// IsMedia reports whether Payload is a file reference rather than a link.
func (m Movie) IsMedia() bool {
	return m.MediaType != MediaNone
}

// UnmarshalJSON also accepts numeric codes and the older "link" key.
func (m *Movie) UnmarshalJSON(data []byte) error {
	type plain Movie
	var aux struct {
		plain
		Code json.RawMessage `json:"code"`
		Link string          `json:"link"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Movie(aux.plain)
	if len(aux.Code) > 0 && aux.Code[0] == '"' {
		if err := json.Unmarshal(aux.Code, &m.Code); err != nil {
			return err
		}
	} else if len(aux.Code) > 0 && string(aux.Code) != "null" {
		var n json.Number
		if err := json.Unmarshal(aux.Code, &n); err != nil {
			return fmt.Errorf("movie code: %w", err)
		}
		m.Code = n.String()
	}
	if m.Payload == "" {
		m.Payload = aux.Link
	}
	return nil
}

func (m Movie) clone() Movie {
	if m.Rating != nil {
		r := *m.Rating
		m.Rating = &r
	}
	return m
}

// Document is the persisted registry state.
type Document struct {
	Movies   []Movie  `json:"movies"`
	Channels []string `json:"channels"`
	Users    []int64  `json:"users"`
	Admins   []int64  `json:"admins"`
}

// Clone returns a deep copy with non-nil collections.
func (d Document) Clone() Document {
	out := Document{
		Movies:   make([]Movie, 0, len(d.Movies)),
		Channels: append(make([]string, 0, len(d.Channels)), d.Channels...),
		Users:    append(make([]int64, 0, len(d.Users)), d.Users...),
		Admins:   append(make([]int64, 0, len(d.Admins)), d.Admins...),
	}
	for _, m := range d.Movies {
		out.Movies = append(out.Movies, m.clone())
	}
	return out
}

// Stats holds collection sizes.
type Stats struct {
	Users    int
	Movies   int
	Admins   int
	Channels int
}

func normalizeCode(code string) string {
	return strings.TrimSpace(code)
}

func normalizeChannel(id string) string {
	return strings.TrimSpace(id)
}

package mediacache

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ItemKind tags the shape of a MediaItem.
type ItemKind string

const (
	ItemURL            ItemKind = "url"
	ItemURLWithCaption ItemKind = "urlWithCaption"
)

// MediaItem is one entry of a gallery-style content field: either a bare
// media reference or a reference with a caption.
//
// In JSON a plain item is a string and a captioned item is an object with
// "url" and "caption" fields.
type MediaItem struct {
	Kind    ItemKind
	Value   string
	Caption string
}

// URLItem returns a plain media item.
func URLItem(ref string) MediaItem {
	return MediaItem{Kind: ItemURL, Value: ref}
}

// CaptionedItem returns a media item with a caption.
func CaptionedItem(ref, caption string) MediaItem {
	return MediaItem{Kind: ItemURLWithCaption, Value: ref, Caption: caption}
}

type captionedJSON struct {
	URL     string  `json:"url"`
	Caption *string `json:"caption,omitempty"`
}

func (i MediaItem) MarshalJSON() ([]byte, error) {
	switch i.Kind {
	case ItemURL, "":
		return json.Marshal(i.Value)
	case ItemURLWithCaption:
		caption := i.Caption
		return json.Marshal(captionedJSON{URL: i.Value, Caption: &caption})
	default:
		return nil, fmt.Errorf("media item: unknown kind %q", i.Kind)
	}
}

// UnmarshalJSON accepts a string or an object. Objects without a caption
// field decode as plain items.
func (i *MediaItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var ref string
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("media item: %w", err)
		}
		*i = URLItem(ref)
	case '{':
		var obj captionedJSON
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("media item: %w", err)
		}
		if obj.Caption == nil {
			*i = URLItem(obj.URL)
		} else {
			*i = CaptionedItem(obj.URL, *obj.Caption)
		}
	default:
		return fmt.Errorf("media item: expected string or object, got %q", data[0])
	}
	return nil
}

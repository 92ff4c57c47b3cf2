package core

import (
	"errors"
	"fmt"
)

// ErrContentMerge is the sentinel matched by every ContentMergeError.
var ErrContentMerge = errors.New("content merge failed")

// ContentMergeError reports a segment shape that cannot be merged.
type ContentMergeError struct {
	Reason string
}

func (e *ContentMergeError) Error() string {
	return fmt.Sprintf("content merge error: %s", e.Reason)
}

// Is makes errors.Is(err, ErrContentMerge) hold.
func (e *ContentMergeError) Is(target error) bool { return target == ErrContentMerge }

// MergeContent appends next to existing and returns the combined content
// without mutating either input. It is defined for all four combinations of
// plain and segmented content and never drops data:
//
//	text     + text     -> concatenated text
//	text     + segments -> text joined onto the leading text segment (or prepended)
//	segments + text     -> text joined onto the trailing text segment (or appended)
//	segments + segments -> concatenation, adjoining text segments joined
//
// Unrecognized segments fail with a ContentMergeError.
func MergeContent(existing, next Content) (Content, error) {
	if err := checkParts(existing.Parts); err != nil {
		return Content{}, err
	}
	if err := checkParts(next.Parts); err != nil {
		return Content{}, err
	}

	switch {
	case !existing.IsSegmented() && !next.IsSegmented():
		return Text(existing.Text + next.Text), nil

	case !existing.IsSegmented():
		parts := next.Clone().Parts
		if existing.Text == "" {
			return Segments(parts...), nil
		}
		if len(parts) > 0 {
			if tp, ok := parts[0].(TextPart); ok {
				parts[0] = TextPart{Text: existing.Text + tp.Text}
				return Segments(parts...), nil
			}
		}
		return Segments(append([]Part{TextPart{Text: existing.Text}}, parts...)...), nil

	case !next.IsSegmented():
		parts := existing.Clone().Parts
		if next.Text == "" {
			return Segments(parts...), nil
		}
		return Segments(appendText(parts, next.Text)...), nil

	default:
		parts := existing.Clone().Parts
		for i, p := range next.Clone().Parts {
			if tp, ok := p.(TextPart); ok && i == 0 {
				parts = appendText(parts, tp.Text)
				continue
			}
			parts = append(parts, p)
		}
		return Segments(parts...), nil
	}
}

func appendText(parts []Part, text string) []Part {
	if n := len(parts); n > 0 {
		if tp, ok := parts[n-1].(TextPart); ok {
			parts[n-1] = TextPart{Text: tp.Text + text}
			return parts
		}
	}
	return append(parts, TextPart{Text: text})
}

func checkParts(parts []Part) error {
	for i, p := range parts {
		switch p.(type) {
		case TextPart, ToolUsePart, ToolResultPart:
		case nil:
			return &ContentMergeError{Reason: fmt.Sprintf("segment %d is nil", i)}
		default:
			return &ContentMergeError{Reason: fmt.Sprintf("segment %d has unrecognized shape %T", i, p)}
		}
	}
	return nil
}

package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMergeContent(t *testing.T) {
	use := ToolUsePart{ID: "1", Name: "add", Input: map[string]string{"a": "2"}}

	tests := []struct {
		name     string
		existing Content
		next     Content
		want     Content
	}{
		{
			name:     "text+text",
			existing: Text("Hello, "),
			next:     Text("world"),
			want:     Text("Hello, world"),
		},
		{
			name:     "text+segments joins leading text",
			existing: Text("Hel"),
			next:     Segments(TextPart{Text: "lo"}, use),
			want:     Segments(TextPart{Text: "Hello"}, use),
		},
		{
			name:     "text+segments prepends when segments start with a tool call",
			existing: Text("Hello"),
			next:     Segments(use),
			want:     Segments(TextPart{Text: "Hello"}, use),
		},
		{
			name:     "empty text+segments",
			existing: Text(""),
			next:     Segments(use),
			want:     Segments(use),
		},
		{
			name:     "segments+text joins trailing text",
			existing: Segments(use, TextPart{Text: "par"}),
			next:     Text("tial"),
			want:     Segments(use, TextPart{Text: "partial"}),
		},
		{
			name:     "segments+text appends after a tool call",
			existing: Segments(use),
			next:     Text("more"),
			want:     Segments(use, TextPart{Text: "more"}),
		},
		{
			name:     "segments+segments keeps both lists",
			existing: Segments(TextPart{Text: "a"}, use, TextPart{Text: "b"}),
			next:     Segments(TextPart{Text: "c"}, ToolResultPart{ToolUseID: "1", Content: "2"}),
			want: Segments(
				TextPart{Text: "a"}, use, TextPart{Text: "bc"},
				ToolResultPart{ToolUseID: "1", Content: "2"},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeContent(tt.existing, tt.next)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeContent_DoesNotMutateInputs(t *testing.T) {
	existing := Segments(TextPart{Text: "a"})
	next := Segments(TextPart{Text: "b"})
	_, err := MergeContent(existing, next)
	require.NoError(t, err)
	assert.Equal(t, Segments(TextPart{Text: "a"}), existing)
	assert.Equal(t, Segments(TextPart{Text: "b"}), next)
}

func TestMergeContent_UnrecognizedSegment(t *testing.T) {
	_, err := MergeContent(Segments(TextPart{Text: "a"}, nil), Text("b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentMerge))

	var mergeErr *ContentMergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Contains(t, mergeErr.Reason, "segment 1")
}

func genContent() *rapid.Generator[Content] {
	part := rapid.Custom(func(t *rapid.T) Part {
		switch rapid.IntRange(0, 2).Draw(t, "kind") {
		case 0:
			return TextPart{Text: rapid.String().Draw(t, "text")}
		case 1:
			return ToolUsePart{ID: rapid.StringN(1, 8, -1).Draw(t, "id"), Name: "tool", Input: map[string]string{}}
		default:
			return ToolResultPart{ToolUseID: rapid.StringN(1, 8, -1).Draw(t, "id"), Content: rapid.String().Draw(t, "out")}
		}
	})
	return rapid.Custom(func(t *rapid.T) Content {
		if rapid.Bool().Draw(t, "segmented") {
			return Segments(rapid.SliceOf(part).Draw(t, "parts")...)
		}
		return Text(rapid.String().Draw(t, "plain"))
	})
}

func nonText(parts []Part) []Part {
	var out []Part
	for _, p := range parts {
		if _, ok := p.(TextPart); !ok {
			out = append(out, p)
		}
	}
	return out
}

func TestMergeContent_LossFree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genContent().Draw(t, "a")
		b := genContent().Draw(t, "b")

		merged, err := MergeContent(a, b)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
		if got, want := merged.PlainText(), a.PlainText()+b.PlainText(); got != want {
			t.Fatalf("text lost: got %q want %q", got, want)
		}
		wantTools := append(nonText(a.AsSegments()), nonText(b.AsSegments())...)
		gotTools := nonText(merged.AsSegments())
		if len(gotTools) != len(wantTools) {
			t.Fatalf("tool segments lost: got %d want %d", len(gotTools), len(wantTools))
		}
		for i := range wantTools {
			if gotTools[i].Kind() != wantTools[i].Kind() {
				t.Fatalf("segment %d reordered", i)
			}
		}
	})
}

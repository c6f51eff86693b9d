// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package blocks

import "testing"

func TestExtract_CodeBlock(t *testing.T) {
	in := Input{MessageID: "m1", ConversationID: "c1", Content: "Here is some code:\n```go\nfunc main() {}\n```\n"}
	got := Extract(in)

	var found bool
	for _, b := range got {
		if b.BlockType == BlockCode && b.Language == "go" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a code block, got %+v", got)
	}
}

func TestExtract_ImagePrompt(t *testing.T) {
	in := Input{MessageID: "m1", ConversationID: "c1", Content: "prompt: a watercolor painting of a lighthouse at dusk"}
	got := Extract(in)
	if len(got) != 1 || got[0].BlockType != BlockImagePrompt {
		t.Fatalf("expected single image_prompt block, got %+v", got)
	}
}

func TestExtract_Transcription(t *testing.T) {
	TranscriptionGizmoIDs["journal-1"] = true
	defer delete(TranscriptionGizmoIDs, "journal-1")

	in := Input{MessageID: "m1", ConversationID: "c1", GizmoID: "journal-1", Content: "anything at all"}
	got := Extract(in)
	if len(got) != 1 || got[0].BlockType != BlockTranscription {
		t.Fatalf("expected transcription block, got %+v", got)
	}
}

func TestExtract_JSONData(t *testing.T) {
	in := Input{MessageID: "m1", ConversationID: "c1", Content: `Result: {"status":"ok","count":3} and some trailing prose that is long enough to be kept as well.`}
	got := Extract(in)

	var sawJSON bool
	for _, b := range got {
		if b.BlockType == BlockJSONData {
			sawJSON = true
		}
	}
	if !sawJSON {
		t.Fatalf("expected a json_data block, got %+v", got)
	}
}

func TestExtract_ShortRemainderDropped(t *testing.T) {
	in := Input{MessageID: "m1", ConversationID: "c1", Content: "```go\nfunc f(){}\n```\nok"}
	got := Extract(in)
	for _, b := range got {
		if b.BlockType == BlockProse {
			t.Fatalf("did not expect a prose block for short remainder, got %+v", b)
		}
	}
}

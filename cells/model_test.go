package cells

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func testDocumentModel() *DocumentModel {
	path := "/tmp/ignored.json"
	return &DocumentModel{
		Name: "set ♫ 1",
		Tracks: []Track{
			{
				Name: "drums",
				Cells: []Cell{
					{Name: "kick", Code: "play(:bd, amp: 1)\nsleep 0.5"},
					{Name: "", Code: ""},
					{Name: "snare", Code: "if a < b && c > d { \"ok\" }"},
				},
				Template: TrackTemplate{
					BackendName:     "Sonic Pi",
					SetupCode:       "use_bpm 120",
					RunCommand:      "sonic-pi-tool eval",
					PromptIndicator: "> ",
					Description:     "drums",
					EditorMode:      "ruby",
				},
			},
			{
				Name:     "ノート",
				Cells:    []Cell{},
				Template: DefaultTrackTemplate(),
			},
			{
				Name: "bass",
				Cells: []Cell{
					{Name: "a", Code: "1"},
					{Name: "b", Code: "2"},
				},
				Template: DefaultTrackTemplate(),
			},
		},
		Path: &path,
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	model := testDocumentModel()

	b, err := EncodeDocument(model)
	assert.Equal(t, err, nil)

	decoded, err := DecodeDocument(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded, model)

	// encoding is stable
	b2, err := EncodeDocument(decoded)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(b2), string(b))
}

func TestEncodeVerbatim(t *testing.T) {
	b, err := EncodeDocument(testDocumentModel())
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Contains(string(b), "a < b && c > d"), true)
	assert.Equal(t, strings.Contains(string(b), "♫"), true)
}

func TestEncodeNilCells(t *testing.T) {
	model := &DocumentModel{
		Name: "d",
		Tracks: []Track{
			{Name: "t", Template: DefaultTrackTemplate()},
		},
	}
	b, err := EncodeDocument(model)
	assert.Equal(t, err, nil)

	decoded, err := DecodeDocument(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded.Tracks[0].Cells, []Cell{})
	assert.Equal(t, decoded.Path, nil)
}

func TestDecodeDefaults(t *testing.T) {
	decoded, err := DecodeDocument([]byte(`{
		"name": "d",
		"tracks": [
			{"name": "t", "cells": [{"name": "c"}, {}]},
			{"name": "u", "cells": [], "template": {"backend_name": "Python"}}
		]
	}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded.Tracks[0].Template, DefaultTrackTemplate())
	assert.Equal(t, decoded.Tracks[0].Cells, []Cell{{Name: "c"}, {}})
	assert.Equal(t, decoded.Tracks[1].Template, TrackTemplate{
		BackendName: "Python",
		EditorMode:  DefaultEditorMode,
	})
}

func TestDecodeDocumentErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		missing bool
	}{
		{"not json", `tracks:`, false},
		{"empty", ``, false},
		{"null", `null`, true},
		{"missing name", `{"tracks": []}`, true},
		{"missing tracks", `{"name": "d"}`, true},
		{"null tracks", `{"name": "d", "tracks": null}`, true},
		{"name type", `{"name": 1, "tracks": []}`, false},
		{"tracks type", `{"name": "d", "tracks": {}}`, false},
		{"track missing cells", `{"name": "d", "tracks": [{"name": "t"}]}`, true},
		{"track missing name", `{"name": "d", "tracks": [{"cells": []}]}`, true},
		{"null track", `{"name": "d", "tracks": [null]}`, true},
		{"cell code type", `{"name": "d", "tracks": [{"name": "t", "cells": [{"code": 2}]}]}`, false},
		{"template type", `{"name": "d", "tracks": [{"name": "t", "cells": [], "template": []}]}`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			model, err := DecodeDocument([]byte(tc.content))
			assert.Equal(t, model, nil)
			assert.Equal(t, errors.Is(err, ErrParse), true)
			assert.Equal(t, errors.Is(err, ErrMissingField), tc.missing)
		})
	}
}

func TestTrackTemplateRoundTrip(t *testing.T) {
	template := TrackTemplate{
		BackendName:     "Python",
		SetupCode:       "import math\n",
		RunCommand:      "python3 -i",
		PromptIndicator: ">>> ",
		Description:     "python <3",
		EditorMode:      "python",
	}
	b, err := EncodeTrackTemplate(template)
	assert.Equal(t, err, nil)

	decoded, err := DecodeTrackTemplate(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded, template)

	var fields map[string]string
	assert.Equal(t, json.Unmarshal(b, &fields), nil)
	assert.Equal(t, fields["backend_name"], "Python")
	assert.Equal(t, fields["prompt_indicator"], ">>> ")
	assert.Equal(t, len(fields), 6)
}

func TestDecodeTrackTemplateErrors(t *testing.T) {
	for _, content := range []string{``, `null`, `[]`, `{"setup_code": 1}`} {
		_, err := DecodeTrackTemplate([]byte(content))
		assert.Equal(t, errors.Is(err, ErrParse), true)
	}

	template, err := DecodeTrackTemplate([]byte(`{}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, template, DefaultTrackTemplate())
}

func TestClone(t *testing.T) {
	model := testDocumentModel()
	clone := model.Clone()
	assert.Equal(t, clone, model)

	clone.Tracks[0].Cells[0].Code = "changed"
	clone.Tracks[0].Name = "changed"
	*clone.Path = "changed"
	assert.Equal(t, model.Tracks[0].Cells[0].Code, "play(:bd, amp: 1)\nsleep 0.5")
	assert.Equal(t, model.Tracks[0].Name, "drums")
	assert.Equal(t, *model.Path, "/tmp/ignored.json")
}

func TestMove(t *testing.T) {
	testCases := []struct {
		index    int
		newIndex int
		expected []string
	}{
		{0, 0, []string{"a", "b", "c", "d"}},
		{0, 3, []string{"b", "c", "d", "a"}},
		{3, 0, []string{"d", "a", "b", "c"}},
		{1, 2, []string{"a", "c", "b", "d"}},
		{2, 1, []string{"a", "c", "b", "d"}},
	}
	for _, tc := range testCases {
		values := []string{"a", "b", "c", "d"}
		assert.Equal(t, move("v", values, tc.index, tc.newIndex), tc.expected)
	}

	assert.PanicMatches(t, func() {
		move("v", []string{"a", "b"}, 0, 2)
	}, "v index 2 out of range [0, 2)")
	assert.PanicMatches(t, func() {
		remove("v", []string{"a", "b"}, -1)
	}, "v index -1 out of range [0, 2)")
}

func TestEncodeInvalidText(t *testing.T) {
	invalid := string([]byte{'a', 0xff, 'b'})

	testCases := []struct {
		name   string
		mutate func(model *DocumentModel)
	}{
		{"document name", func(model *DocumentModel) { model.Name = invalid }},
		{"track name", func(model *DocumentModel) { model.Tracks[1].Name = invalid }},
		{"cell name", func(model *DocumentModel) { model.Tracks[0].Cells[2].Name = invalid }},
		{"cell code", func(model *DocumentModel) { model.Tracks[2].Cells[1].Code = invalid }},
		{"template", func(model *DocumentModel) { model.Tracks[0].Template.SetupCode = invalid }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			model := testDocumentModel()
			tc.mutate(model)
			b, err := EncodeDocument(model)
			assert.Equal(t, errors.Is(err, ErrInvalidText), true)
			assert.Equal(t, len(b), 0)
		})
	}

	_, err := EncodeTrackTemplate(TrackTemplate{BackendName: invalid})
	assert.Equal(t, errors.Is(err, ErrInvalidText), true)
}

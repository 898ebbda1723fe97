package cells

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"golang.org/x/exp/slices"
)

const DefaultBackendName = "Default"
const DefaultEditorMode = "plain text"

// Cell text is stored verbatim and must be valid utf-8.
type Cell struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// TrackTemplate describes how the code of a track is set up and run.
// A track holds a copy of the template values, never a shared reference.
type TrackTemplate struct {
	BackendName     string `json:"backend_name"`
	SetupCode       string `json:"setup_code"`
	RunCommand      string `json:"run_command"`
	PromptIndicator string `json:"prompt_indicator"`
	Description     string `json:"description"`
	EditorMode      string `json:"editor_mode"`
}

func DefaultTrackTemplate() TrackTemplate {
	return TrackTemplate{
		BackendName: DefaultBackendName,
		EditorMode:  DefaultEditorMode,
	}
}

// missing fields take the default template values
func (self *TrackTemplate) UnmarshalJSON(b []byte) error {
	type plain TrackTemplate
	template := plain(DefaultTrackTemplate())
	if err := json.Unmarshal(b, &template); err != nil {
		return err
	}
	*self = TrackTemplate(template)
	return nil
}

type Track struct {
	Name     string        `json:"name"`
	Cells    []Cell        `json:"cells"`
	Template TrackTemplate `json:"template"`
}

func NewTrack(name string, template TrackTemplate) *Track {
	return &Track{
		Name:     name,
		Cells:    []Cell{},
		Template: template,
	}
}

func (self *Track) UnmarshalJSON(b []byte) error {
	var wire struct {
		Name     *string        `json:"name"`
		Cells    *[]Cell        `json:"cells"`
		Template *TrackTemplate `json:"template"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if wire.Name == nil {
		return fmt.Errorf("track name: %w", ErrMissingField)
	}
	if wire.Cells == nil || *wire.Cells == nil {
		return fmt.Errorf("track cells: %w", ErrMissingField)
	}
	self.Name = *wire.Name
	self.Cells = *wire.Cells
	if wire.Template != nil {
		self.Template = *wire.Template
	} else {
		self.Template = DefaultTrackTemplate()
	}
	return nil
}

func (self *Track) Clone() *Track {
	return &Track{
		Name:     self.Name,
		Cells:    append([]Cell{}, self.Cells...),
		Template: self.Template,
	}
}

// DocumentModel is the root aggregate of an open document.
// Path is nil until the document is opened from or saved to a file.
type DocumentModel struct {
	Name   string  `json:"name"`
	Tracks []Track `json:"tracks"`
	Path   *string `json:"path"`
}

const NewDocumentName = "New Document"

func NewDocumentModel() *DocumentModel {
	return &DocumentModel{
		Name:   NewDocumentName,
		Tracks: []Track{},
	}
}

func (self *DocumentModel) UnmarshalJSON(b []byte) error {
	var wire struct {
		Name   *string  `json:"name"`
		Tracks *[]Track `json:"tracks"`
		Path   *string  `json:"path"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if wire.Name == nil {
		return fmt.Errorf("document name: %w", ErrMissingField)
	}
	if wire.Tracks == nil || *wire.Tracks == nil {
		return fmt.Errorf("document tracks: %w", ErrMissingField)
	}
	self.Name = *wire.Name
	self.Tracks = *wire.Tracks
	self.Path = wire.Path
	return nil
}

// Clone is a deep copy with non-nil collections. Event payloads that leave
// the dispatch goroutine carry a clone.
func (self *DocumentModel) Clone() *DocumentModel {
	tracks := make([]Track, 0, len(self.Tracks))
	for i := range self.Tracks {
		tracks = append(tracks, *self.Tracks[i].Clone())
	}
	var path *string
	if self.Path != nil {
		p := *self.Path
		path = &p
	}
	return &DocumentModel{
		Name:   self.Name,
		Tracks: tracks,
		Path:   path,
	}
}

func (self *DocumentModel) track(index int) *Track {
	requireIndex("track", index, len(self.Tracks))
	return &self.Tracks[index]
}

func (self *Track) cell(index int) *Cell {
	requireIndex("cell", index, len(self.Cells))
	return &self.Cells[index]
}

// move removes the element at index and reinserts it at newIndex,
// shifting the elements in between
func move[T any](name string, values []T, index int, newIndex int) []T {
	requireIndex(name, index, len(values))
	requireIndex(name, newIndex, len(values))
	value := values[index]
	values = slices.Delete(values, index, index+1)
	return slices.Insert(values, newIndex, value)
}

func remove[T any](name string, values []T, index int) []T {
	requireIndex(name, index, len(values))
	return slices.Delete(values, index, index+1)
}

func encodeJson(v any) ([]byte, error) {
	var b bytes.Buffer
	encoder := json.NewEncoder(&b)
	// cell code is stored verbatim, e.g. `a < b && c`
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// checks every text field, since encoding/json would replace invalid bytes with U+FFFD
func validText(field string, values ...string) error {
	for _, value := range values {
		if !utf8.ValidString(value) {
			return fmt.Errorf("%s %q: %w", field, value, ErrInvalidText)
		}
	}
	return nil
}

func (self TrackTemplate) validText() error {
	return validText(
		"template",
		self.BackendName,
		self.SetupCode,
		self.RunCommand,
		self.PromptIndicator,
		self.Description,
		self.EditorMode,
	)
}

func (self *DocumentModel) validText() error {
	if err := validText("document name", self.Name); err != nil {
		return err
	}
	for _, track := range self.Tracks {
		if err := validText("track name", track.Name); err != nil {
			return err
		}
		if err := track.Template.validText(); err != nil {
			return err
		}
		for _, cell := range track.Cells {
			if err := validText("cell", cell.Name, cell.Code); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodeDocument fails with ErrInvalidText rather than altering text.
func EncodeDocument(model *DocumentModel) ([]byte, error) {
	if err := model.validText(); err != nil {
		return nil, err
	}
	// the clone has no nil collections, which would encode as null
	return encodeJson(model.Clone())
}

func DecodeDocument(b []byte) (*DocumentModel, error) {
	model := &DocumentModel{}
	if err := json.Unmarshal(b, model); err != nil {
		return nil, parseError(err)
	}
	return model, nil
}

func EncodeTrackTemplate(template TrackTemplate) ([]byte, error) {
	if err := template.validText(); err != nil {
		return nil, err
	}
	return encodeJson(template)
}

func DecodeTrackTemplate(b []byte) (TrackTemplate, error) {
	var wire *TrackTemplate
	if err := json.Unmarshal(b, &wire); err != nil {
		return TrackTemplate{}, parseError(err)
	}
	if wire == nil {
		return TrackTemplate{}, parseError(fmt.Errorf("track template: %w", ErrMissingField))
	}
	return *wire, nil
}

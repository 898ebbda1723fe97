package cells

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// Document is the mutable aggregate root of one editor session.
//
// The model is only mutated by the document's own responders, on the
// dispatch goroutine. Views publish view events and re-render from the
// `DocumentUpdate` snapshot that follows every mutation.
type Document struct {
	*Observation

	model                *DocumentModel
	trackTemplateManager *TrackTemplateManager
}

func NewDocument(subject *Subject, settings *Settings) *Document {
	self := &Document{
		Observation: NewObservation(subject),
		model:       NewDocumentModel(),
	}
	self.trackTemplateManager = NewTrackTemplateManager(self, subject, settings.DataDir)
	self.Notify(&DocumentNew{})

	self.AddResponder(KindViewFileOpen, self.fileOpenResponder)
	self.AddResponder(KindViewFileSave, self.fileSaveResponder)
	self.AddResponder(KindViewFileSaveAs, self.fileSaveResponder)

	self.AddResponder(KindViewTrackNew, self.updating(self.trackNewResponder))
	self.AddResponder(KindViewCellAdd, self.updating(self.cellAddResponder))
	self.AddResponder(KindViewCellRemove, self.updating(self.cellRemoveResponder))
	self.AddResponder(KindViewTrackNameChanged, self.updating(self.trackNameChangedResponder))
	self.AddResponder(KindViewTrackTemplateUpdated, self.updating(self.trackTemplateUpdatedResponder))
	self.AddResponder(KindViewCellNameChanged, self.updating(self.cellNameChangedResponder))
	self.AddResponder(KindViewCellCodeChanged, self.updating(self.cellCodeChangedResponder))
	self.AddResponder(KindViewTrackRemove, self.updating(self.trackRemoveResponder))
	self.AddResponder(KindViewTrackMove, self.updating(self.trackMoveResponder))
	self.AddResponder(KindViewCellMove, self.updating(self.cellMoveResponder))

	return self
}

// Model returns a copy of the current model.
func (self *Document) Model() *DocumentModel {
	return self.model.Clone()
}

func (self *Document) TrackTemplateManager() *TrackTemplateManager {
	return self.trackTemplateManager
}

func (self *Document) Close() {
	self.trackTemplateManager.Unregister()
	self.Unregister()
}

// updating wraps a mutation so that exactly one `DocumentUpdate` with the
// current model follows it. Every mutation responder is registered through it.
func (self *Document) updating(mutate Responder) Responder {
	return func(event Event) {
		mutate(event)
		glog.V(2).Infof("[doc]%s tracks = %d\n", event.Kind(), len(self.model.Tracks))
		self.Notify(&DocumentUpdate{
			Model: self.model.Clone(),
		})
	}
}

func (self *Document) fileOpenResponder(event Event) {
	e := event.(*ViewFileOpen)
	self.Open(e.Path)
}

func (self *Document) fileSaveResponder(event Event) {
	switch e := event.(type) {
	case *ViewFileSave:
		self.Save(e.Path)
	case *ViewFileSaveAs:
		self.Save(e.Path)
	}
}

func (self *Document) trackNewResponder(event Event) {
	e := event.(*ViewTrackNew)
	template := DefaultTrackTemplate()
	if e.Template != nil {
		template = *e.Template
	}
	track := NewTrack(e.Name, template)
	self.model.Tracks = append(self.model.Tracks, *track)
	self.Notify(&TrackCreated{
		Track: track.Clone(),
	})
}

func (self *Document) cellAddResponder(event Event) {
	e := event.(*ViewCellAdd)
	track := self.model.track(e.TrackIndex)
	track.Cells = append(track.Cells, Cell{Name: e.Name})
}

func (self *Document) cellRemoveResponder(event Event) {
	e := event.(*ViewCellRemove)
	track := self.model.track(e.TrackIndex)
	track.Cells = remove("cell", track.Cells, e.Index)
}

func (self *Document) trackNameChangedResponder(event Event) {
	e := event.(*ViewTrackNameChanged)
	self.model.track(e.Index).Name = e.Name
}

func (self *Document) trackTemplateUpdatedResponder(event Event) {
	e := event.(*ViewTrackTemplateUpdated)
	self.model.track(e.Index).Template = e.Template
}

func (self *Document) cellNameChangedResponder(event Event) {
	e := event.(*ViewCellNameChanged)
	self.model.track(e.TrackIndex).cell(e.Index).Name = e.Name
}

func (self *Document) cellCodeChangedResponder(event Event) {
	e := event.(*ViewCellCodeChanged)
	self.model.track(e.TrackIndex).cell(e.Index).Code = e.Code
}

func (self *Document) trackRemoveResponder(event Event) {
	e := event.(*ViewTrackRemove)
	self.model.Tracks = remove("track", self.model.Tracks, e.Index)
}

func (self *Document) trackMoveResponder(event Event) {
	e := event.(*ViewTrackMove)
	self.model.Tracks = move("track", self.model.Tracks, e.Index, e.NewIndex)
}

func (self *Document) cellMoveResponder(event Event) {
	e := event.(*ViewCellMove)
	track := self.model.track(e.TrackIndex)
	track.Cells = move("cell", track.Cells, e.Index, e.NewIndex)
}

// Open replaces the model with the document stored at path.
// On failure the current model is kept and a `DocumentError` is published.
func (self *Document) Open(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return self.fail("Can't open file", ioError(err))
	}
	model, err := DecodeDocument(b)
	if err != nil {
		return self.fail("Can't open file", fmt.Errorf("%s: %w", path, err))
	}
	model.Path = &path
	model.Name = nameFromPath(path)
	self.model = model

	glog.Infof("[doc]open %s tracks = %d\n", path, len(model.Tracks))
	self.Notify(&DocumentOpen{
		Model: self.model.Clone(),
	})
	return nil
}

// Save writes the model to path. The path and name are updated before the
// write, so they change even when the write fails.
func (self *Document) Save(path string) error {
	self.model.Path = &path
	self.model.Name = nameFromPath(path)

	b, err := EncodeDocument(self.model)
	if err != nil {
		return self.fail("Can't save file", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return self.fail("Can't save file", ioError(err))
	}

	glog.Infof("[doc]save %s tracks = %d\n", path, len(self.model.Tracks))
	return nil
}

func (self *Document) fail(message string, err error) error {
	glog.Errorf("[doc]%s: %s\n", message, err)
	self.Notify(&DocumentError{
		Model:   self.model.Clone(),
		Message: message,
		Err:     err,
	})
	return err
}

// base name with the final extension removed. leading dots are not an extension
func nameFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(strings.TrimLeft(base, "."))
	return strings.TrimSuffix(base, ext)
}

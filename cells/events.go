package cells

import (
	"fmt"
)

type EventKind int

const (
	// view intents, consumed by the document and template manager
	KindViewFileOpen EventKind = iota + 1
	KindViewFileSave
	KindViewFileSaveAs
	KindViewTrackNew
	KindViewCellAdd
	KindViewCellRemove
	KindViewTrackNameChanged
	KindViewTrackTemplateUpdated
	KindViewCellNameChanged
	KindViewCellCodeChanged
	KindViewTrackRemove
	KindViewTrackMove
	KindViewCellMove
	KindViewTrackSaveAsTemplate
	KindViewTemplatesRescan

	// produced by the core
	KindDocumentNew
	KindDocumentOpen
	KindDocumentUpdate
	KindDocumentError
	KindTrackCreated
	KindTrackTemplateSaved
	KindTemplatesLoaded
)

var eventKindNames = map[EventKind]string{
	KindViewFileOpen:             "FileOpen",
	KindViewFileSave:             "FileSave",
	KindViewFileSaveAs:           "FileSaveAs",
	KindViewTrackNew:             "TrackNew",
	KindViewCellAdd:              "CellAdd",
	KindViewCellRemove:           "CellRemove",
	KindViewTrackNameChanged:     "TrackNameChanged",
	KindViewTrackTemplateUpdated: "TrackTemplateUpdated",
	KindViewCellNameChanged:      "CellNameChanged",
	KindViewCellCodeChanged:      "CellCodeChanged",
	KindViewTrackRemove:          "TrackRemove",
	KindViewTrackMove:            "TrackMove",
	KindViewCellMove:             "CellMove",
	KindViewTrackSaveAsTemplate:  "TrackSaveAsTemplate",
	KindViewTemplatesRescan:      "TemplatesRescan",
	KindDocumentNew:              "DocumentNew",
	KindDocumentOpen:             "DocumentOpen",
	KindDocumentUpdate:           "DocumentUpdate",
	KindDocumentError:            "DocumentError",
	KindTrackCreated:             "TrackCreated",
	KindTrackTemplateSaved:       "TrackTemplateSaved",
	KindTemplatesLoaded:          "TemplatesLoaded",
}

func (self EventKind) String() string {
	if name, ok := eventKindNames[self]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(self))
}

func ParseEventKind(name string) (EventKind, error) {
	for kind, kindName := range eventKindNames {
		if kindName == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// IsViewIntent reports whether views may publish the kind.
func (self EventKind) IsViewIntent() bool {
	return KindViewFileOpen <= self && self <= KindViewTemplatesRescan
}

// NewViewEvent returns an empty event value for a view intent kind,
// for decoding from an external view.
func NewViewEvent(kind EventKind) (Event, error) {
	switch kind {
	case KindViewFileOpen:
		return &ViewFileOpen{}, nil
	case KindViewFileSave:
		return &ViewFileSave{}, nil
	case KindViewFileSaveAs:
		return &ViewFileSaveAs{}, nil
	case KindViewTrackNew:
		return &ViewTrackNew{}, nil
	case KindViewCellAdd:
		return &ViewCellAdd{}, nil
	case KindViewCellRemove:
		return &ViewCellRemove{}, nil
	case KindViewTrackNameChanged:
		return &ViewTrackNameChanged{}, nil
	case KindViewTrackTemplateUpdated:
		return &ViewTrackTemplateUpdated{}, nil
	case KindViewCellNameChanged:
		return &ViewCellNameChanged{}, nil
	case KindViewCellCodeChanged:
		return &ViewCellCodeChanged{}, nil
	case KindViewTrackRemove:
		return &ViewTrackRemove{}, nil
	case KindViewTrackMove:
		return &ViewTrackMove{}, nil
	case KindViewCellMove:
		return &ViewCellMove{}, nil
	case KindViewTrackSaveAsTemplate:
		return &ViewTrackSaveAsTemplate{}, nil
	case KindViewTemplatesRescan:
		return &ViewTemplatesRescan{}, nil
	default:
		return nil, fmt.Errorf("%s is not a view event", kind)
	}
}

type Event interface {
	Kind() EventKind
}

type ViewFileOpen struct {
	Path string `json:"path"`
}

func (self *ViewFileOpen) Kind() EventKind { return KindViewFileOpen }

type ViewFileSave struct {
	Path string `json:"path"`
}

func (self *ViewFileSave) Kind() EventKind { return KindViewFileSave }

type ViewFileSaveAs struct {
	Path string `json:"path"`
}

func (self *ViewFileSaveAs) Kind() EventKind { return KindViewFileSaveAs }

// ViewTrackNew asks for a new empty track.
// When Template is nil the track gets the default template.
type ViewTrackNew struct {
	Name     string         `json:"name"`
	Template *TrackTemplate `json:"template,omitempty"`
}

func (self *ViewTrackNew) Kind() EventKind { return KindViewTrackNew }

type ViewCellAdd struct {
	TrackIndex int    `json:"track_index"`
	Name       string `json:"name"`
}

func (self *ViewCellAdd) Kind() EventKind { return KindViewCellAdd }

type ViewCellRemove struct {
	TrackIndex int `json:"track_index"`
	Index      int `json:"index"`
}

func (self *ViewCellRemove) Kind() EventKind { return KindViewCellRemove }

type ViewTrackNameChanged struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

func (self *ViewTrackNameChanged) Kind() EventKind { return KindViewTrackNameChanged }

type ViewTrackTemplateUpdated struct {
	Index    int           `json:"index"`
	Template TrackTemplate `json:"template"`
}

func (self *ViewTrackTemplateUpdated) Kind() EventKind { return KindViewTrackTemplateUpdated }

type ViewCellNameChanged struct {
	TrackIndex int    `json:"track_index"`
	Index      int    `json:"index"`
	Name       string `json:"name"`
}

func (self *ViewCellNameChanged) Kind() EventKind { return KindViewCellNameChanged }

type ViewCellCodeChanged struct {
	TrackIndex int    `json:"track_index"`
	Index      int    `json:"index"`
	Code       string `json:"code"`
}

func (self *ViewCellCodeChanged) Kind() EventKind { return KindViewCellCodeChanged }

type ViewTrackRemove struct {
	Index int `json:"index"`
}

func (self *ViewTrackRemove) Kind() EventKind { return KindViewTrackRemove }

type ViewTrackMove struct {
	Index    int `json:"index"`
	NewIndex int `json:"new_index"`
}

func (self *ViewTrackMove) Kind() EventKind { return KindViewTrackMove }

type ViewCellMove struct {
	TrackIndex int `json:"track_index"`
	Index      int `json:"index"`
	NewIndex   int `json:"new_index"`
}

func (self *ViewCellMove) Kind() EventKind { return KindViewCellMove }

type ViewTrackSaveAsTemplate struct {
	Template TrackTemplate `json:"template"`
}

func (self *ViewTrackSaveAsTemplate) Kind() EventKind { return KindViewTrackSaveAsTemplate }

type ViewTemplatesRescan struct {
}

func (self *ViewTemplatesRescan) Kind() EventKind { return KindViewTemplatesRescan }

type DocumentNew struct {
}

func (self *DocumentNew) Kind() EventKind { return KindDocumentNew }

type DocumentOpen struct {
	Model *DocumentModel `json:"model"`
}

func (self *DocumentOpen) Kind() EventKind { return KindDocumentOpen }

// DocumentUpdate carries the full model after a mutation, not a diff.
// Views re-render from it.
type DocumentUpdate struct {
	Model *DocumentModel `json:"model"`
}

func (self *DocumentUpdate) Kind() EventKind { return KindDocumentUpdate }

type DocumentError struct {
	Model   *DocumentModel `json:"model"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
}

func (self *DocumentError) Kind() EventKind { return KindDocumentError }

type TrackCreated struct {
	Track *Track `json:"track"`
}

func (self *TrackCreated) Kind() EventKind { return KindTrackCreated }

type TrackTemplateSaved struct {
	Template TrackTemplate `json:"template"`
	Path     string        `json:"path"`
}

func (self *TrackTemplateSaved) Kind() EventKind { return KindTrackTemplateSaved }

type TemplatesLoaded struct {
	Templates []TrackTemplate `json:"templates"`
}

func (self *TemplatesLoaded) Kind() EventKind { return KindTemplatesLoaded }

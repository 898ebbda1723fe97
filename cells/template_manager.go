package cells

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

const TrackTemplateExt = ".ctt"
const TrackTemplateDirName = "track_templates"

// TrackTemplateManager keeps the reusable track templates stored as one file
// per template under `<data dir>/track_templates`.
//
// The template list is a snapshot of the last scan. It is not kept in sync
// with the directory; call `ReadDir` or publish `ViewTemplatesRescan` to re-read.
type TrackTemplateManager struct {
	*Observation

	document  *Document
	dataDir   string
	templates []TrackTemplate
	paths     []string
}

func NewTrackTemplateManager(document *Document, subject *Subject, dataDir string) *TrackTemplateManager {
	self := &TrackTemplateManager{
		Observation: NewObservation(subject),
		document:    document,
		dataDir:     dataDir,
	}

	if dir, err := self.StandardTrackTemplateDir(); err == nil {
		self.ReadDir(dir)
	}

	self.AddResponder(KindViewTrackSaveAsTemplate, self.saveAsTemplateResponder)
	self.AddResponder(KindViewTemplatesRescan, self.rescanResponder)

	return self
}

// Templates returns the templates of the last scan, ordered by file name.
func (self *TrackTemplateManager) Templates() []TrackTemplate {
	return append([]TrackTemplate{}, self.templates...)
}

// Paths returns the files of `Templates`, index for index.
func (self *TrackTemplateManager) Paths() []string {
	return append([]string{}, self.paths...)
}

// StandardTrackTemplateDir returns the template directory, creating it if needed.
func (self *TrackTemplateManager) StandardTrackTemplateDir() (string, error) {
	dir := filepath.Join(self.dataDir, TrackTemplateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", self.fail("Can't create track template directory.", ioError(err))
	}
	return dir, nil
}

// ReadDir replaces the template list with every template file in dir, sorted
// by file name. A file that cannot be read is reported with one `DocumentError`
// and left out; the scan continues.
func (self *TrackTemplateManager) ReadDir(dir string) []TrackTemplate {
	templates := []TrackTemplate{}
	paths := []string{}

	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		self.fail("Can't read track template directory.", ioError(err))
	}
	// os.ReadDir is sorted by file name
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), TrackTemplateExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		template, err := self.Read(path)
		if err != nil {
			continue
		}
		templates = append(templates, template)
		paths = append(paths, path)
	}

	glog.Infof("[tt]scan %s templates = %d\n", dir, len(templates))
	self.templates = templates
	self.paths = paths
	return self.Templates()
}

func (self *TrackTemplateManager) Read(path string) (TrackTemplate, error) {
	message := fmt.Sprintf("Can't read track template %s.", path)
	b, err := os.ReadFile(path)
	if err != nil {
		return TrackTemplate{}, self.fail(message, ioError(err))
	}
	template, err := DecodeTrackTemplate(b)
	if err != nil {
		return TrackTemplate{}, self.fail(message, err)
	}
	return template, nil
}

// SaveNew writes the template to a new file in the standard directory and
// returns its path. The saved template is picked up by the next scan.
func (self *TrackTemplateManager) SaveNew(template TrackTemplate) (string, error) {
	message := "Can't save track template file."
	dir, err := self.StandardTrackTemplateDir()
	if err != nil {
		return "", err
	}
	b, err := EncodeTrackTemplate(template)
	if err != nil {
		return "", self.fail(message, err)
	}

	path := filepath.Join(dir, NewTrackTemplateFileName())
	// never replace an existing template
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", self.fail(message, ioError(err))
	}
	_, err = f.Write(b)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", self.fail(message, ioError(err))
	}

	glog.Infof("[tt]save %s\n", path)
	return path, nil
}

// NewTrackTemplateFileName is `<timestamp>-<random><ext>`, split from one ulid.
// The ulid entropy is monotonic within a millisecond, so names created later
// sort later and never collide.
func NewTrackTemplateFileName() string {
	id := ulid.Make().String()
	// 10 chars of millisecond time, 16 chars of entropy
	return id[:10] + "-" + id[10:] + TrackTemplateExt
}

func (self *TrackTemplateManager) saveAsTemplateResponder(event Event) {
	e := event.(*ViewTrackSaveAsTemplate)
	path, err := self.SaveNew(e.Template)
	if err != nil {
		return
	}
	self.Notify(&TrackTemplateSaved{
		Template: e.Template,
		Path:     path,
	})
}

func (self *TrackTemplateManager) rescanResponder(event Event) {
	dir, err := self.StandardTrackTemplateDir()
	if err != nil {
		return
	}
	templates := self.ReadDir(dir)
	self.Notify(&TemplatesLoaded{
		Templates: templates,
	})
}

func (self *TrackTemplateManager) fail(message string, err error) error {
	glog.Errorf("[tt]%s: %s\n", message, err)
	var model *DocumentModel
	if self.document != nil {
		model = self.document.model.Clone()
	}
	self.Notify(&DocumentError{
		Model:   model,
		Message: message,
		Err:     err,
	})
	return err
}

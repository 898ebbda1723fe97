package cells

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

func writeTemplateFile(t *testing.T, path string, template TrackTemplate) {
	b, err := EncodeTrackTemplate(template)
	assert.Equal(t, err, nil)
	assert.Equal(t, os.WriteFile(path, b, 0644), nil)
}

func TestTemplateScan(t *testing.T) {
	settings := testSettings(t)
	dir := filepath.Join(settings.DataDir, TrackTemplateDirName)
	assert.Equal(t, os.MkdirAll(filepath.Join(dir, "nested.ctt"), 0755), nil)

	writeTemplateFile(t, filepath.Join(dir, "c.ctt"), TrackTemplate{BackendName: "c", EditorMode: "c"})
	writeTemplateFile(t, filepath.Join(dir, "a.ctt"), TrackTemplate{BackendName: "a", EditorMode: "a"})
	writeTemplateFile(t, filepath.Join(dir, "b.ctt"), TrackTemplate{BackendName: "b", EditorMode: "b"})
	writeTemplateFile(t, filepath.Join(dir, "notes.txt"), TrackTemplate{BackendName: "txt"})
	bad := filepath.Join(dir, "bad.ctt")
	assert.Equal(t, os.WriteFile(bad, []byte(`{"backend_name": `), 0644), nil)

	subject := NewSubject()
	recorder := newEventRecorder(subject, producedKinds...)
	// the constructor scans the standard directory
	document := NewDocument(subject, settings)
	manager := document.TrackTemplateManager()

	backends := []string{}
	for _, template := range manager.Templates() {
		backends = append(backends, template.BackendName)
	}
	assert.Equal(t, backends, []string{"a", "b", "c"})
	assert.Equal(t, manager.Paths(), []string{
		filepath.Join(dir, "a.ctt"),
		filepath.Join(dir, "b.ctt"),
		filepath.Join(dir, "c.ctt"),
	})

	assert.Equal(t, recorder.count(KindDocumentError), 1)
	e := recorder.last(KindDocumentError).(*DocumentError)
	assert.Equal(t, e.Message, "Can't read track template "+bad+".")
	assert.Equal(t, errors.Is(e.Err, ErrParse), true)
	assert.Equal(t, e.Model, document.Model())

	// the snapshot is a copy
	templates := manager.Templates()
	templates[0].BackendName = "changed"
	assert.Equal(t, manager.Templates()[0].BackendName, "a")
}

func TestTemplateScanMissingDir(t *testing.T) {
	subject := NewSubject()
	recorder := newEventRecorder(subject, KindDocumentError)
	manager := NewTrackTemplateManager(nil, subject, t.TempDir())

	templates := manager.ReadDir(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, templates, []TrackTemplate{})
	assert.Equal(t, len(recorder.events), 0)
}

func TestStandardTrackTemplateDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	subject := NewSubject()
	manager := NewTrackTemplateManager(nil, subject, dataDir)

	dir, err := manager.StandardTrackTemplateDir()
	assert.Equal(t, err, nil)
	assert.Equal(t, dir, filepath.Join(dataDir, TrackTemplateDirName))

	again, err := manager.StandardTrackTemplateDir()
	assert.Equal(t, err, nil)
	assert.Equal(t, again, dir)

	info, err := os.Stat(dir)
	assert.Equal(t, err, nil)
	assert.Equal(t, info.IsDir(), true)
}

func TestTemplateDataDirNotDirectory(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "file")
	assert.Equal(t, os.WriteFile(dataDir, []byte("x"), 0644), nil)

	subject := NewSubject()
	recorder := newEventRecorder(subject, KindDocumentError)
	manager := NewTrackTemplateManager(nil, subject, dataDir)

	assert.Equal(t, recorder.count(KindDocumentError), 1)
	e := recorder.last(KindDocumentError).(*DocumentError)
	assert.Equal(t, e.Message, "Can't create track template directory.")
	assert.Equal(t, errors.Is(e.Err, ErrIO), true)
	assert.Equal(t, e.Model, nil)
	assert.Equal(t, manager.Templates(), []TrackTemplate{})

	_, err := manager.SaveNew(DefaultTrackTemplate())
	assert.Equal(t, errors.Is(err, ErrIO), true)
	assert.Equal(t, recorder.count(KindDocumentError), 2)
}

func TestSaveNew(t *testing.T) {
	subject := NewSubject()
	manager := NewTrackTemplateManager(nil, subject, t.TempDir())

	first := TrackTemplate{BackendName: "first", EditorMode: "python"}
	second := TrackTemplate{BackendName: "second", EditorMode: "ruby"}

	firstPath, err := manager.SaveNew(first)
	assert.Equal(t, err, nil)
	secondPath, err := manager.SaveNew(second)
	assert.Equal(t, err, nil)
	assert.NotEqual(t, firstPath, secondPath)

	// saved files are not in the snapshot until the next scan
	assert.Equal(t, len(manager.Templates()), 0)

	dir, err := manager.StandardTrackTemplateDir()
	assert.Equal(t, err, nil)
	assert.Equal(t, manager.ReadDir(dir), []TrackTemplate{first, second})
	assert.Equal(t, manager.Paths(), []string{firstPath, secondPath})

	template, err := manager.Read(firstPath)
	assert.Equal(t, err, nil)
	assert.Equal(t, template, first)
}

func TestTrackTemplateFileName(t *testing.T) {
	names := map[string]bool{}
	previous := ""
	for range 100 {
		name := NewTrackTemplateFileName()
		assert.MatchRegex(t, name, `^[0-9A-HJKMNP-TV-Z]{10}-[0-9A-HJKMNP-TV-Z]{16}\.ctt$`)
		assert.Equal(t, previous < name, true)
		names[name] = true
		previous = name
	}
	assert.Equal(t, len(names), 100)
}

func TestTemplateEvents(t *testing.T) {
	document, recorder := newTestDocument(t)
	view := NewObservation(document.Subject())
	manager := document.TrackTemplateManager()
	recorder.reset()

	template := TrackTemplate{
		BackendName: "Python",
		RunCommand:  "python3 -i",
		EditorMode:  "python",
	}
	view.Notify(&ViewTrackSaveAsTemplate{Template: template})

	assert.Equal(t, recorder.kinds(), []EventKind{KindTrackTemplateSaved})
	saved := recorder.last(KindTrackTemplateSaved).(*TrackTemplateSaved)
	assert.Equal(t, saved.Template, template)
	read, err := manager.Read(saved.Path)
	assert.Equal(t, err, nil)
	assert.Equal(t, read, template)
	assert.Equal(t, len(manager.Templates()), 0)

	view.Notify(&ViewTemplatesRescan{})

	loaded := recorder.last(KindTemplatesLoaded).(*TemplatesLoaded)
	assert.Equal(t, loaded.Templates, []TrackTemplate{template})
	assert.Equal(t, manager.Templates(), []TrackTemplate{template})
	assert.Equal(t, manager.Paths(), []string{saved.Path})

	// template mutations never update the document
	assert.Equal(t, recorder.count(KindDocumentUpdate), 0)
}

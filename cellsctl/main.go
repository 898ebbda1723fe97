package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"golang.org/x/term"

	"github.com/bringyour/cells/cells"
)

const CellsCtlVersion = "0.0.1"

const DefaultServeAddr = "127.0.0.1:8420"

func usage() string {
	return fmt.Sprintf(
		`Cells document control.

Every command that changes a document opens it (when the file exists),
publishes one view event and saves it back to the same path.

The default data dir is:
    data_dir: %s

Usage:
    cellsctl show <document> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl new-track <document> <name> [--template=<template_index>] [--data_dir=<data_dir>] [--v=<v>]
    cellsctl remove-track <document> <index> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl rename-track <document> <index> <name> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl move-track <document> <index> <new_index> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl set-template <document> <index> --template=<template_index> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl add-cell <document> <track_index> <name> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl remove-cell <document> <track_index> <index> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl rename-cell <document> <track_index> <index> <name> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl set-code <document> <track_index> <index> (--code=<code> | --code_file=<code_file>) [--data_dir=<data_dir>] [--v=<v>]
    cellsctl move-cell <document> <track_index> <index> <new_index> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl templates [--data_dir=<data_dir>] [--v=<v>]
    cellsctl save-template <document> <track_index> [--data_dir=<data_dir>] [--v=<v>]
    cellsctl serve <document> [--addr=<addr>] [--secret=<secret>] [--data_dir=<data_dir>] [--v=<v>]

Options:
    -h --help                      Show this screen.
    --version                      Show version.
    --data_dir=<data_dir>          Per-user data dir that holds the track templates.
    --template=<template_index>    Index into the stored track templates (see "templates").
    --code=<code>                  Cell code.
    --code_file=<code_file>        Read the cell code from this file.
    --addr=<addr>                  View bridge listen address [default: %s].
    --secret=<secret>              View bridge clients must present an HS256 jwt signed with this secret.
    --v=<v>                        Log verbosity [default: 0].`,
		cells.DefaultDataDir(),
		DefaultServeAddr,
	)
}

func main() {
	opts, err := docopt.ParseArgs(usage(), os.Args[1:], CellsCtlVersion)
	if err != nil {
		panic(err)
	}

	initGlog(opts)
	defer glog.Flush()

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func initGlog(opts docopt.Opts) {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "ERROR")
	if v, err := opts.String("--v"); err == nil && v != "" {
		flag.Set("v", v)
	}
}

func run(opts docopt.Opts, out io.Writer) error {
	commands := []struct {
		name string
		fn   func(docopt.Opts, io.Writer) error
	}{
		{"show", show},
		{"new-track", newTrack},
		{"remove-track", removeTrack},
		{"rename-track", renameTrack},
		{"move-track", moveTrack},
		{"set-template", setTemplate},
		{"add-cell", addCell},
		{"remove-cell", removeCell},
		{"rename-cell", renameCell},
		{"set-code", setCode},
		{"move-cell", moveCell},
		{"templates", templates},
		{"save-template", saveTemplate},
		{"serve", serve},
	}
	for _, command := range commands {
		if selected, _ := opts.Bool(command.name); selected {
			return command.fn(opts, out)
		}
	}
	return errors.New("no command")
}

// session is the command line view of one document.
// it only changes the document by publishing view events.
type session struct {
	*cells.Observation

	path     string
	settings *cells.Settings
	document *cells.Document
	errs     []string
	// unreadable templates found by the startup scan. only `templates` reports them
	scanErrs []string
}

func newSession(opts docopt.Opts) (*session, error) {
	settings := cells.DefaultSettings()
	if dataDir, err := opts.String("--data_dir"); err == nil && dataDir != "" {
		settings.DataDir = dataDir
	}

	subject := cells.NewSubject()
	self := &session{
		Observation: cells.NewObservation(subject),
		settings:    settings,
	}
	// registered before the document so that template scan errors are collected
	self.AddResponder(cells.KindDocumentError, func(event cells.Event) {
		e := event.(*cells.DocumentError)
		message := e.Message
		if e.Err != nil {
			message = fmt.Sprintf("%s (%s)", e.Message, e.Err)
		}
		self.errs = append(self.errs, message)
	})
	self.document = cells.NewDocument(subject, settings)
	self.scanErrs = self.errs
	self.errs = nil
	for _, message := range self.scanErrs {
		glog.Warningf("[ctl]%s\n", message)
	}

	if path, err := opts.String("<document>"); err == nil && path != "" {
		self.path = path
		if _, err := os.Stat(path); err == nil {
			self.Notify(&cells.ViewFileOpen{Path: path})
			if err := self.err(); err != nil {
				return nil, err
			}
		}
	}
	return self, nil
}

// err collects the error events published since the last call
func (self *session) err() error {
	if len(self.errs) == 0 {
		return nil
	}
	err := errors.New(strings.Join(self.errs, "\n"))
	self.errs = nil
	return err
}

func (self *session) save() error {
	self.Notify(&cells.ViewFileSave{Path: self.path})
	return self.err()
}

// publish sends one view event and saves the document
func (self *session) publish(event cells.Event) error {
	self.Notify(event)
	if err := self.err(); err != nil {
		return err
	}
	return self.save()
}

func (self *session) trackIndex(opts docopt.Opts, key string) (int, error) {
	index, err := opts.Int(key)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	n := len(self.document.Model().Tracks)
	if index < 0 || n <= index {
		return 0, fmt.Errorf("track index %d out of range (%d tracks)", index, n)
	}
	return index, nil
}

func (self *session) cellIndex(opts docopt.Opts, trackIndex int, key string) (int, error) {
	index, err := opts.Int(key)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	n := len(self.document.Model().Tracks[trackIndex].Cells)
	if index < 0 || n <= index {
		return 0, fmt.Errorf("cell index %d out of range (%d cells)", index, n)
	}
	return index, nil
}

func (self *session) template(opts docopt.Opts) (*cells.TrackTemplate, error) {
	templateStr, err := opts.String("--template")
	if err != nil || templateStr == "" {
		return nil, nil
	}
	index, err := opts.Int("--template")
	if err != nil {
		return nil, fmt.Errorf("--template: %w", err)
	}
	templates := self.document.TrackTemplateManager().Templates()
	if index < 0 || len(templates) <= index {
		return nil, fmt.Errorf("template index %d out of range (%d templates)", index, len(templates))
	}
	return &templates[index], nil
}

func writeJson(out io.Writer, b []byte) error {
	// indent for people, keep one line for pipes
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		var indented bytes.Buffer
		if err := json.Indent(&indented, b, "", "    "); err == nil {
			b = indented.Bytes()
		}
	}
	_, err := out.Write(b)
	return err
}

func printDocument(out io.Writer, model *cells.DocumentModel) error {
	b, err := cells.EncodeDocument(model)
	if err != nil {
		return err
	}
	return writeJson(out, b)
}

func show(opts docopt.Opts, out io.Writer) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	return printDocument(out, s.document.Model())
}

// mutate runs one view event built from the options
func mutate(opts docopt.Opts, out io.Writer, build func(*session) (cells.Event, error)) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	event, err := build(s)
	if err != nil {
		return err
	}
	if err := s.publish(event); err != nil {
		return err
	}
	return printDocument(out, s.document.Model())
}

func newTrack(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		name, _ := opts.String("<name>")
		template, err := s.template(opts)
		if err != nil {
			return nil, err
		}
		return &cells.ViewTrackNew{Name: name, Template: template}, nil
	})
}

func removeTrack(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		index, err := s.trackIndex(opts, "<index>")
		if err != nil {
			return nil, err
		}
		return &cells.ViewTrackRemove{Index: index}, nil
	})
}

func renameTrack(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		index, err := s.trackIndex(opts, "<index>")
		if err != nil {
			return nil, err
		}
		name, _ := opts.String("<name>")
		return &cells.ViewTrackNameChanged{Index: index, Name: name}, nil
	})
}

func moveTrack(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		index, err := s.trackIndex(opts, "<index>")
		if err != nil {
			return nil, err
		}
		newIndex, err := s.trackIndex(opts, "<new_index>")
		if err != nil {
			return nil, err
		}
		return &cells.ViewTrackMove{Index: index, NewIndex: newIndex}, nil
	})
}

func setTemplate(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		index, err := s.trackIndex(opts, "<index>")
		if err != nil {
			return nil, err
		}
		template, err := s.template(opts)
		if err != nil {
			return nil, err
		}
		if template == nil {
			return nil, errors.New("--template is required")
		}
		return &cells.ViewTrackTemplateUpdated{Index: index, Template: *template}, nil
	})
}

func addCell(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		trackIndex, err := s.trackIndex(opts, "<track_index>")
		if err != nil {
			return nil, err
		}
		name, _ := opts.String("<name>")
		return &cells.ViewCellAdd{TrackIndex: trackIndex, Name: name}, nil
	})
}

func removeCell(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		trackIndex, err := s.trackIndex(opts, "<track_index>")
		if err != nil {
			return nil, err
		}
		index, err := s.cellIndex(opts, trackIndex, "<index>")
		if err != nil {
			return nil, err
		}
		return &cells.ViewCellRemove{TrackIndex: trackIndex, Index: index}, nil
	})
}

func renameCell(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		trackIndex, err := s.trackIndex(opts, "<track_index>")
		if err != nil {
			return nil, err
		}
		index, err := s.cellIndex(opts, trackIndex, "<index>")
		if err != nil {
			return nil, err
		}
		name, _ := opts.String("<name>")
		return &cells.ViewCellNameChanged{TrackIndex: trackIndex, Index: index, Name: name}, nil
	})
}

func setCode(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		trackIndex, err := s.trackIndex(opts, "<track_index>")
		if err != nil {
			return nil, err
		}
		index, err := s.cellIndex(opts, trackIndex, "<index>")
		if err != nil {
			return nil, err
		}
		code, _ := opts.String("--code")
		if codeFile, _ := opts.String("--code_file"); codeFile != "" {
			b, err := os.ReadFile(codeFile)
			if err != nil {
				return nil, err
			}
			code = string(b)
		}
		if !utf8.ValidString(code) {
			return nil, errors.New("cell code is not valid utf-8")
		}
		return &cells.ViewCellCodeChanged{TrackIndex: trackIndex, Index: index, Code: code}, nil
	})
}

func moveCell(opts docopt.Opts, out io.Writer) error {
	return mutate(opts, out, func(s *session) (cells.Event, error) {
		trackIndex, err := s.trackIndex(opts, "<track_index>")
		if err != nil {
			return nil, err
		}
		index, err := s.cellIndex(opts, trackIndex, "<index>")
		if err != nil {
			return nil, err
		}
		newIndex, err := s.cellIndex(opts, trackIndex, "<new_index>")
		if err != nil {
			return nil, err
		}
		return &cells.ViewCellMove{TrackIndex: trackIndex, Index: index, NewIndex: newIndex}, nil
	})
}

func templates(opts docopt.Opts, out io.Writer) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	manager := s.document.TrackTemplateManager()
	paths := manager.Paths()
	for i, template := range manager.Templates() {
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", i, template.BackendName, template.Description, paths[i])
	}
	// unreadable templates were skipped
	if 0 < len(s.scanErrs) {
		return errors.New(strings.Join(s.scanErrs, "\n"))
	}
	return nil
}

func saveTemplate(opts docopt.Opts, out io.Writer) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	trackIndex, err := s.trackIndex(opts, "<track_index>")
	if err != nil {
		return err
	}
	var savedPath string
	s.AddResponder(cells.KindTrackTemplateSaved, func(event cells.Event) {
		savedPath = event.(*cells.TrackTemplateSaved).Path
	})
	s.Notify(&cells.ViewTrackSaveAsTemplate{
		Template: s.document.Model().Tracks[trackIndex].Template,
	})
	if err := s.err(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", savedPath)
	return nil
}

func serve(opts docopt.Opts, out io.Writer) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	// bridge clients see errors as events
	s.Unregister()

	if secret, _ := opts.String("--secret"); secret != "" {
		s.settings.BridgeSecret = []byte(secret)
	}
	addr, _ := opts.String("--addr")

	bridge := cells.NewViewBridge(s.document, s.settings)
	defer bridge.Unregister()

	server := &http.Server{
		Addr:              addr,
		Handler:           bridge,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	fmt.Fprintf(out, "serving %s on ws://%s\n", s.path, addr)

	runCtx, cancel := context.WithCancel(ctx)
	var listenErr error
	go func() {
		defer cancel()
		select {
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				glog.Errorf("[ctl]serve error = %s\n", err)
				listenErr = err
			}
		case <-runCtx.Done():
		}
	}()
	bridge.Run(runCtx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return listenErr
}

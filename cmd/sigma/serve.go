package main

import (
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mrLexx/HTML-Template-Sigma/pkg/sigma"
)

// serve hosts a preview server rendering templates from the configured
// directory. Rendered pages are cached in memory; a filesystem watcher on the
// template directory drops the cache on any change.
func serve(config *Config, source sigma.Source, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(config.TemplateDir); err != nil {
		return err
	}

	srv := &pageServer{
		config: config,
		source: source,
		logger: logger,
		pages:  map[string][]byte{},
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					// an included file can end up in any page, so any change
					// drops the whole cache
					srv.invalidate()
					logger.Debug("template change detected", "file", event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("template watcher error", "error", err)
			}
		}
	}()

	s := &http.Server{
		Addr:           config.ListenAddr,
		Handler:        srv,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	logger.Info("preview server listening", "address", config.ListenAddr, "templates", config.TemplateDir)
	return s.ListenAndServe()
}

type pageServer struct {
	config *Config
	source sigma.Source
	logger *slog.Logger

	mu    sync.Mutex
	pages map[string][]byte
}

func (srv *pageServer) invalidate() {
	srv.mu.Lock()
	srv.pages = map[string][]byte{}
	srv.mu.Unlock()
}

func (srv *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[1:]
	if name == "" || strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	if strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}

	srv.mu.Lock()
	page, ok := srv.pages[name]
	srv.mu.Unlock()

	if !ok {
		out, err := srv.render(name)
		if err != nil {
			if errors.Is(err, sigma.ErrTemplateNotFound) {
				http.NotFound(w, r)
				return
			}
			srv.logger.Error("failed to render page", "page", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		page = out
		srv.mu.Lock()
		srv.pages[name] = page
		srv.mu.Unlock()
	}

	switch path.Ext(name) {
	case ".html", ".tpl":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Header().Set("Cache-Control", "no-store, no-cache")
	_, _ = w.Write(page)
}

// render builds a fresh engine per request. Compiled artifacts are shared
// through the artifact store, so a fresh engine stays cheap while request
// state never leaks between pages.
func (srv *pageServer) render(name string) ([]byte, error) {
	tpl, err := newEngine(srv.config, srv.source, srv.logger)
	if err != nil {
		return nil, err
	}
	if err := tpl.LoadTemplate(name); err != nil {
		return nil, err
	}
	out, err := tpl.Get(sigma.RootBlock, false)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

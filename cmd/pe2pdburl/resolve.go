package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/getsentry/pe2pdburl/internal/debugmeta"
	"github.com/getsentry/pe2pdburl/internal/errorutil"
	"github.com/getsentry/pe2pdburl/internal/pe"
	"github.com/getsentry/pe2pdburl/internal/symbolurl"
)

type (
	fileResult struct {
		Path string
		URLs symbolurl.Result
		Info pe.DebugInfo
		Err  error
	}

	fileError struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}

	jsonOutput struct {
		debugmeta.DebugMeta
		Errors []fileError `json:"errors,omitempty"`
	}
)

// resolve parses every path with a pool of workers. Results keep the order
// of paths.
func resolve(b symbolurl.Builder, paths []string, workers int) []fileResult {
	results := make([]fileResult, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				path := paths[idx]
				urls, info, err := b.FromFile(path)
				results[idx] = fileResult{Path: path, URLs: urls, Info: info, Err: err}
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func debugMeta(results []fileResult) debugmeta.DebugMeta {
	var d debugmeta.DebugMeta
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		d.Add(debugmeta.NewImage(r.Path, r.Info, r.URLs))
	}
	return d
}

func writeText(w io.Writer, results []fileResult) error {
	for _, r := range results {
		var err error
		switch {
		case r.Err == nil:
			_, err = fmt.Fprintf(w, "PE File: %s\nPE Url: %s\nPDB Url: %s\n", r.Path, r.URLs.PEURL, r.URLs.PDBURL)
		case errors.Is(r.Err, errorutil.ErrFileNotFound):
			_, err = fmt.Fprintf(w, "%s does not exist\n", r.Path)
		default:
			_, err = fmt.Fprintf(w, "%s cannot be parsed correctly to retrieve debug information\n", r.Path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, results []fileResult) error {
	out := jsonOutput{DebugMeta: debugMeta(results)}
	for _, r := range results {
		if r.Err != nil {
			out.Errors = append(out.Errors, fileError{Path: r.Path, Error: r.Err.Error()})
		}
	}
	encoder := gojson.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"

	"github.com/getsentry/pe2pdburl/internal/debugmeta"
	"github.com/getsentry/pe2pdburl/internal/storageutil"
	"github.com/getsentry/pe2pdburl/internal/symbolurl"
	"github.com/getsentry/pe2pdburl/internal/testutil"
)

func writeImages(t *testing.T) (string, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	noDebug := testutil.SampleImage(false)
	noDebug.DebugSize = 0
	images := map[string][]byte{
		"app.exe":     testutil.SampleImage(false).Bytes(),
		"app32.dll":   testutil.SampleImage(true).Bytes(),
		"nodebug.dll": noDebug.Bytes(),
		"garbage.bin": []byte("not a PE file"),
	}
	paths := make(map[string]string, len(images))
	for name, b := range images {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, b, 0o600); err != nil {
			t.Fatalf("we should be able to write %s: %v", name, err)
		}
		paths[name] = path
	}
	paths["missing.exe"] = filepath.Join(dir, "missing.exe")
	return dir, paths
}

func testConfig() ServiceConfig {
	return ServiceConfig{
		SymbolServerURL: symbolurl.DefaultServerURL,
		ManifestName:    "debug_meta.json.lz4",
		Workers:         2,
	}
}

func TestTextOutput(t *testing.T) {
	_, paths := writeImages(t)
	var stdout bytes.Buffer
	cmd := newRootCommand(testConfig(), &stdout)
	cmd.SetArgs([]string{
		paths["app.exe"],
		paths["missing.exe"],
		paths["nodebug.dll"],
		paths["garbage.bin"],
		paths["app32.dll"],
	})

	err := cmd.Execute()
	if !errors.Is(err, errSomeFilesFailed) {
		t.Fatalf("expected errSomeFilesFailed, got %v", err)
	}
	expected := strings.Join([]string{
		"PE File: " + paths["app.exe"],
		"PE Url: http://msdl.microsoft.com/download/symbols/app.exe/5AB380779000/app.exe",
		"PDB Url: http://msdl.microsoft.com/download/symbols/app.pdb/3249D99D0C4049318610F4E4FB0B69361/app.pdb",
		paths["missing.exe"] + " does not exist",
		paths["nodebug.dll"] + " cannot be parsed correctly to retrieve debug information",
		paths["garbage.bin"] + " cannot be parsed correctly to retrieve debug information",
		"PE File: " + paths["app32.dll"],
		"PE Url: http://msdl.microsoft.com/download/symbols/app32.dll/5AB380779000/app32.dll",
		"PDB Url: http://msdl.microsoft.com/download/symbols/app.pdb/3249D99D0C4049318610F4E4FB0B69361/app.pdb",
	}, "\n") + "\n"
	if diff := testutil.Diff(stdout.String(), expected); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestFailuresLoggedAsErrors(t *testing.T) {
	_, paths := writeImages(t)
	var logs bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&logs)
	defer func() { log.Logger = previous }()

	var stdout bytes.Buffer
	cmd := newRootCommand(testConfig(), &stdout)
	cmd.SetArgs([]string{paths["missing.exe"]})
	if err := cmd.Execute(); !errors.Is(err, errSomeFilesFailed) {
		t.Fatalf("expected errSomeFilesFailed, got %v", err)
	}

	var entry struct {
		Level   string `json:"level"`
		File    string `json:"file"`
		Message string `json:"message"`
	}
	line, _, _ := strings.Cut(logs.String(), "\n")
	if err := gojson.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line should be JSON: %v (%q)", err, logs.String())
	}
	if entry.Level != zerolog.LevelErrorValue {
		t.Fatalf("expected level %q, got %q", zerolog.LevelErrorValue, entry.Level)
	}
	if entry.File != paths["missing.exe"] {
		t.Fatalf("expected file %q, got %q", paths["missing.exe"], entry.File)
	}
}

func TestServerFlag(t *testing.T) {
	_, paths := writeImages(t)
	var stdout bytes.Buffer
	cmd := newRootCommand(testConfig(), &stdout)
	cmd.SetArgs([]string{"--server", "https://symbols.example.com/", paths["app.exe"]})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("we should be able to resolve the file: %v", err)
	}
	if !strings.Contains(stdout.String(), "PDB Url: https://symbols.example.com/app.pdb/3249D99D0C4049318610F4E4FB0B69361/app.pdb\n") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestJSONOutput(t *testing.T) {
	_, paths := writeImages(t)
	var stdout bytes.Buffer
	cmd := newRootCommand(testConfig(), &stdout)
	cmd.SetArgs([]string{"--json", paths["app32.dll"], paths["nodebug.dll"]})

	err := cmd.Execute()
	if !errors.Is(err, errSomeFilesFailed) {
		t.Fatalf("expected errSomeFilesFailed, got %v", err)
	}

	var out jsonOutput
	if err := gojson.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("we should be able to decode the output: %v", err)
	}
	if len(out.Images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(out.Images))
	}
	img := out.Images[0]
	if img.Arch != "x86" || img.CodeID != "5AB380779000" || img.DebugID != "3249d99d-0c40-4931-8610-f4e4fb0b6936-1" {
		t.Fatalf("unexpected image %+v", img)
	}
	if len(out.Errors) != 1 || out.Errors[0].Path != paths["nodebug.dll"] {
		t.Fatalf("unexpected errors %+v", out.Errors)
	}
}

func TestManifest(t *testing.T) {
	dir, paths := writeImages(t)
	bucketDir := filepath.Join(dir, "bucket")
	if err := os.Mkdir(bucketDir, 0o700); err != nil {
		t.Fatalf("we should be able to create the bucket directory: %v", err)
	}

	var stdout bytes.Buffer
	cmd := newRootCommand(testConfig(), &stdout)
	cmd.SetArgs([]string{
		"--manifest-bucket", "file://" + bucketDir,
		"--manifest-name", "images.json.lz4",
		paths["app.exe"],
		paths["app32.dll"],
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("we should be able to resolve the files: %v", err)
	}

	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "file://"+bucketDir)
	if err != nil {
		t.Fatalf("we should be able to open the bucket: %v", err)
	}
	defer bucket.Close()

	var d debugmeta.DebugMeta
	if err := storageutil.UnmarshalCompressed(ctx, bucket, "images.json.lz4", &d); err != nil {
		t.Fatalf("we should be able to read the manifest: %v", err)
	}
	var codeFiles []string
	for _, img := range d.Images {
		codeFiles = append(codeFiles, img.CodeFile)
	}
	if diff := testutil.Diff(codeFiles, []string{paths["app.exe"], paths["app32.dll"]}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestNoArguments(t *testing.T) {
	var stdout bytes.Buffer
	cmd := newRootCommand(testConfig(), &stdout)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); !errors.Is(err, errUsage) {
		t.Fatalf("expected errUsage, got %v", err)
	}
}

func TestReadConfig(t *testing.T) {
	t.Setenv("SYMBOL_SERVER_URL", "")
	t.Setenv("WORKERS", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("we should be able to read the configuration: %v", err)
	}
	expected := ServiceConfig{
		Environment:     "development",
		SymbolServerURL: symbolurl.DefaultServerURL,
		LogLevel:        "debug",
		LogFormat:       "console",
		ManifestName:    "debug_meta.json.lz4",
		Workers:         1,
	}
	if diff := testutil.Diff(cfg, expected); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	ort "github.com/yalue/onnxruntime_go"
)

func TestResolveLayout(t *testing.T) {
	tests := []struct {
		name      string
		dims      ort.Shape
		labels    int
		size      int
		wantLay   outputLayout
		wantRows  int
		wantAttrs int
	}{
		{"yolov5s", ort.NewShape(1, 25200, 85), 80, 640, layoutV5, 25200, 85},
		{"yolov8n", ort.NewShape(1, 84, 8400), 80, 640, layoutV8, 8400, 84},
		{"v5 dynamic rows", ort.NewShape(1, -1, 85), 80, 640, layoutV5, 25200, 85},
		{"v8 dynamic rows", ort.NewShape(1, 84, -1), 80, 320, layoutV8, 2100, 84},
		{"fully dynamic", ort.NewShape(-1, -1, -1), 3, 640, layoutV5, 25200, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lay, rows, attrs, err := resolveLayout(tt.dims, tt.labels, tt.size)
			if err != nil {
				t.Fatalf("resolveLayout() error = %v", err)
			}
			if lay != tt.wantLay || rows != tt.wantRows || attrs != tt.wantAttrs {
				t.Errorf("resolveLayout() = (%v,%d,%d), expected (%v,%d,%d)",
					lay, rows, attrs, tt.wantLay, tt.wantRows, tt.wantAttrs)
			}
		})
	}

	if _, _, _, err := resolveLayout(ort.NewShape(1, 85), 80, 640); err == nil {
		t.Error("resolveLayout() error = nil for a 2-D output")
	}
}

func TestImageSizeFrom(t *testing.T) {
	if got := imageSizeFrom(ort.NewShape(1, 3, 320, 320)); got != 320 {
		t.Errorf("imageSizeFrom() = %d, expected 320", got)
	}
	if got := imageSizeFrom(ort.NewShape(1, 3, -1, -1)); got != DefaultImageSize {
		t.Errorf("imageSizeFrom() = %d, expected default", got)
	}
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.txt")
	if err := os.WriteFile(path, []byte("cat\n\n dog \n"), 0644); err != nil {
		t.Fatal(err)
	}
	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels() error = %v", err)
	}
	if len(labels) != 2 || labels[0] != "cat" || labels[1] != "dog" {
		t.Errorf("LoadLabels() = %q, expected [cat dog]", labels)
	}

	labels, err = LoadLabels(filepath.Join(dir, "missing.txt"))
	if err != nil || len(labels) != 80 || labels[0] != "person" {
		t.Errorf("LoadLabels(missing) = %d labels, %v; expected the COCO fallback", len(labels), err)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLabels(empty); err == nil {
		t.Error("LoadLabels(empty) error = nil")
	}
}

func TestLabelFor(t *testing.T) {
	if got := labelFor(cocoLabels, 16); got != "dog" {
		t.Errorf("labelFor(16) = %q, expected dog", got)
	}
	if got := labelFor(cocoLabels, 99); got != "class_99" {
		t.Errorf("labelFor(99) = %q, expected class_99", got)
	}
}

func TestEnsureModel_Downloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "models", "model.onnx")
	if err := EnsureModel(context.Background(), srv.URL, path); err != nil {
		t.Fatalf("EnsureModel() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "onnx-bytes" {
		t.Errorf("model contents = %q, %v; expected onnx-bytes", data, err)
	}
}

func TestEnsureModel_ExistingFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(path, []byte("local"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureModel(context.Background(), "http://127.0.0.1:0/never", path); err != nil {
		t.Fatalf("EnsureModel() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "local" {
		t.Errorf("model contents = %q, expected local", data)
	}
}

func TestEnsureModel_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	if err := EnsureModel(context.Background(), srv.URL, path); err == nil {
		t.Error("EnsureModel() error = nil on 404")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("model file exists after failed download: %v", err)
	}
	if err := EnsureModel(context.Background(), "", path); err == nil {
		t.Error("EnsureModel() error = nil without a URL")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("leftover files after failed download: %v", entries)
	}
}

package export

import (
	"context"
	"encoding/csv"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/LdDl/spotmate/internal/stack"
	"github.com/LdDl/spotmate/mot"
	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// particleStack holds two particles moving right by one pixel per frame along y = 2 and y = 7
func particleStack(t *testing.T, dir string) (*stack.Stack, *mot.Model) {
	t.Helper()
	frames := make([]mot.Frame, 0, 4)
	for index := 0; index < 4; index++ {
		frame := mot.NewFrame(index, 12, 10, 1)
		frame.Set(0, 1+index, 2, 50)
		frame.Set(0, 3+index, 7, 80)
		frames = append(frames, frame)
	}
	s := &stack.Stack{
		Name:        "particles.tif",
		Path:        filepath.Join(dir, "particles.tif"),
		Frames:      frames,
		Calibration: mot.Calibration{PixelSize: 0.5, FrameInterval: 0.25},
		NumChannels: 1,
	}
	settings := mot.DefaultSettings()
	settings.Detector.Threshold = 10
	settings.Tracker.MaxLinkingDistance = 1
	settings.Tracker.MaxGapClosingDistance = 1
	pipeline, err := mot.NewPipeline(settings)
	if err != nil {
		t.Fatal(err)
	}
	model, err := pipeline.Process(context.Background(), s.Frames, s.Calibration)
	if err != nil {
		t.Fatal(err)
	}
	if model.NumVisibleTracks() != 2 {
		t.Fatalf("Expected 2 visible tracks, got %d", model.NumVisibleTracks())
	}
	return s, model
}

func TestRows(t *testing.T) {
	s, model := particleStack(t, t.TempDir())
	rows := Rows(s.Name, model)
	expected := []Row{
		{Filename: "particles.tif", TrackID: 0, MeanSpeed: 2, MaxSpeed: 2, MedianSpeed: 2, MeanStraightLineSpeed: 2, Displacement: 1.5, TotalDistance: 1.5, Duration: 0.75},
		{Filename: "particles.tif", TrackID: 1, MeanSpeed: 2, MaxSpeed: 2, MedianSpeed: 2, MeanStraightLineSpeed: 2, Displacement: 1.5, TotalDistance: 1.5, Duration: 0.75},
	}
	if diff := cmp.Diff(expected, rows); diff != "" {
		t.Errorf("Wrong rows (-want +got):\n%s", diff)
	}
	record := rows[0].Record()
	if diff := cmp.Diff([]string{"particles.tif", "0", "2", "2", "2", "2", "1.5", "1.5", "0.75"}, record); diff != "" {
		t.Errorf("Wrong record (-want +got):\n%s", diff)
	}
}

func TestCSVExporter(t *testing.T) {
	dir := t.TempDir()
	s, model := particleStack(t, dir)
	path, err := CSVExporter{}.Export(s, model)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "particles.csv") {
		t.Errorf("Unexpected output path %q", path)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d records", len(records))
	}
	if diff := cmp.Diff(Header, records[0]); diff != "" {
		t.Errorf("Wrong header (-want +got):\n%s", diff)
	}
	if records[2][1] != "1" {
		t.Errorf("Expected second track id 1, got %q", records[2][1])
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file must not survive export")
	}
}

func TestCSVExporterNoTracks(t *testing.T) {
	dir := t.TempDir()
	s, model := particleStack(t, dir)
	settings := mot.DefaultSettings()
	settings.Detector.Threshold = 1000
	pipeline, err := mot.NewPipeline(settings)
	if err != nil {
		t.Fatal(err)
	}
	model, err = pipeline.Process(context.Background(), s.Frames, s.Calibration)
	if err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path, err := CSVExporter{Dir: outDir}.Export(s, model)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := "filename,Track ID,TRACK_MEAN_SPEED,TRACK_MAX_SPEED,TRACK_MEDIAN_SPEED,MEAN_STRAIGHT_LINE_SPEED,TRACK_DISPLACEMENT,TOTAL_DISTANCE_TRAVELED,TRACK_DURATION\n"
	if string(data) != expected {
		t.Errorf("Expected header only, got %q", string(data))
	}
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	s, model := particleStack(t, dir)
	store, err := OpenSQLiteStore(filepath.Join(dir, "results.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Export(s, model); err == nil {
		t.Error("Export before BeginRun must fail")
	}
	runID := uuid.New()
	if err := store.BeginRun(runID, dir); err != nil {
		t.Fatal(err)
	}
	// Exporting twice replaces rows
	for i := 0; i < 2; i++ {
		if _, err := store.Export(s, model); err != nil {
			t.Fatal(err)
		}
	}
	stored, err := store.Tracks(runID, s.Name)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Rows(s.Name, model), stored); diff != "" {
		t.Errorf("Stored rows differ (-want +got):\n%s", diff)
	}
	var tracksFound, tracksVisible int
	err = store.db.QueryRow(`SELECT tracks_found, tracks_visible FROM stacks WHERE run_id = ? AND filename = ?`, runID.String(), s.Name).Scan(&tracksFound, &tracksVisible)
	if err != nil {
		t.Fatal(err)
	}
	if tracksFound != 2 || tracksVisible != 2 {
		t.Errorf("Wrong stack counts: %d found, %d visible", tracksFound, tracksVisible)
	}
	other, err := store.Tracks(uuid.New(), s.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("Unknown run must have no rows, got %d", len(other))
	}
}

func TestPNGRenderer(t *testing.T) {
	dir := t.TempDir()
	s, model := particleStack(t, dir)
	renderer := NewPNGRenderer("", 1)
	if err := renderer.Render(s, model); err != nil {
		t.Fatal(err)
	}
	path := renderer.Output(s)
	if path != filepath.Join(dir, "particles_tracks.png") {
		t.Errorf("Unexpected output path %q", path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 48 || img.Bounds().Dy() != 40 {
		t.Errorf("Expected 48x40 image, got %v", img.Bounds())
	}
	// Track 0 passes through pixel (2, 2), i.e. (10, 10) after scaling
	want := trackColor(0)
	got := color.NRGBAModel.Convert(img.At(10, 10)).(color.NRGBA)
	if got != want {
		t.Errorf("Expected track colour %v, got %v", want, got)
	}
	// Far from any track the background stays gray
	bg := color.NRGBAModel.Convert(img.At(44, 0)).(color.NRGBA)
	if bg.R != bg.G || bg.G != bg.B {
		t.Errorf("Background must be gray, got %v", bg)
	}

	renderer.Channel = 2
	if err := renderer.Render(s, model); err == nil {
		t.Error("Missing channel must fail")
	}
}

func TestTrackColorDeterministic(t *testing.T) {
	if trackColor(3) != trackColor(3) {
		t.Error("Colour must depend on identifier only")
	}
	if trackColor(0) == trackColor(1) {
		t.Error("Neighbouring tracks must differ")
	}
}

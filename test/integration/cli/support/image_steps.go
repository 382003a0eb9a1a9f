package support

import (
	"bytes"
	"fmt"
	"net"
	"os"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/vanish/internal/testutil"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

const (
	sceneWidth  = 640
	sceneHeight = 480

	defaultPersonConfidence = 98.2
)

// peopleFigures spreads count person figures evenly across the scene,
// leaving headroom above each so removal always finds a donor strip.
func peopleFigures(count int) []testutil.Figure {
	figures := make([]testutil.Figure, 0, count)
	step := 0.8 / float64(count)
	for i := 0; i < count; i++ {
		figures = append(figures, testutil.Figure{
			Left:   0.1 + float64(i)*step + step*0.15,
			Top:    0.25,
			Width:  step * 0.6,
			Height: 0.55,
		})
	}
	return figures
}

// writeScenePhoto renders a synthetic scene photo into the scenario temp
// directory and programs matching Person detections into the label store.
func (testCtx *TestContext) writeScenePhoto(name string, figures []testutil.Figure) error {
	img := testutil.GeneratePersonScene(sceneWidth, sceneHeight, figures)
	if err := testutil.WriteSceneFile(testCtx.resolvePath(name), img); err != nil {
		return fmt.Errorf("failed to write scene photo: %w", err)
	}

	if len(figures) == 0 {
		return nil
	}

	instances := make([]vision.Instance, 0, len(figures))
	for _, figure := range figures {
		instances = append(instances, vision.Instance{
			BoundingBox: vision.NormalizedBox{
				Left:   figure.Left,
				Top:    figure.Top,
				Width:  figure.Width,
				Height: figure.Height,
			},
			Confidence: defaultPersonConfidence,
		})
	}
	testCtx.Labels.Add(vision.Label{
		Name:       vision.DefaultPersonLabel,
		Confidence: defaultPersonConfidence,
		Instances:  instances,
	})

	return nil
}

func (testCtx *TestContext) aPhotoContainingOnePerson(name string) error {
	return testCtx.writeScenePhoto(name, peopleFigures(1))
}

func (testCtx *TestContext) aPhotoContainingPeople(name string, count int) error {
	return testCtx.writeScenePhoto(name, peopleFigures(count))
}

func (testCtx *TestContext) aPhotoOfAnEmptyLandscape(name string) error {
	if err := testCtx.writeScenePhoto(name, nil); err != nil {
		return err
	}
	testCtx.Labels.Add(vision.Label{Name: "Landscape", Confidence: 96.1})
	testCtx.Labels.Add(vision.Label{Name: "Nature", Confidence: 92.4})
	return nil
}

func (testCtx *TestContext) aCorruptImageFile(name string) error {
	data := []byte("this is not an image, just bytes with a jpg extension")
	return os.WriteFile(testCtx.resolvePath(name), data, 0o600)
}

func (testCtx *TestContext) aTextFile(name string) error {
	return os.WriteFile(testCtx.resolvePath(name), []byte("meeting notes\n"), 0o600)
}

func (testCtx *TestContext) aJunkFileOfMB(name string, sizeMB int) error {
	data := bytes.Repeat([]byte("vanish"), sizeMB*1024*1024/6+1)
	return os.WriteFile(testCtx.resolvePath(name), data[:sizeMB*1024*1024], 0o600)
}

func (testCtx *TestContext) aDetectionBackendIsRunning() error {
	if testCtx.DetectionStub == nil {
		testCtx.DetectionStub = StartDetectionStub(testCtx.Labels)
	}
	return nil
}

func (testCtx *TestContext) theDetectionBackendReportsLabel(name string, confidence float64) error {
	testCtx.Labels.Add(vision.Label{Name: name, Confidence: confidence})
	return nil
}

// theDetectionBackendIsUnreachable reserves an address nothing listens on so
// connection attempts fail fast.
func (testCtx *TestContext) theDetectionBackendIsUnreachable() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to reserve endpoint address: %w", err)
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return fmt.Errorf("failed to release endpoint address: %w", err)
	}
	testCtx.UnreachableEndpoint = "http://" + addr
	return nil
}

func (testCtx *TestContext) theDetectionBackendShouldHaveReceivedRequests(count int) error {
	if testCtx.DetectionStub == nil {
		return fmt.Errorf("no detection backend is running")
	}
	if got := testCtx.DetectionStub.Requests(); got != count {
		return fmt.Errorf("detection backend received %d requests, expected %d", got, count)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldBeAJPEGImage(name string) error {
	data, err := os.ReadFile(testCtx.resolvePath(name)) //nolint:gosec // G304: test-controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return fmt.Errorf("file %s is not a JPEG image", name)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldBeAPNGImage(name string) error {
	data, err := os.ReadFile(testCtx.resolvePath(name)) //nolint:gosec // G304: test-controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		return fmt.Errorf("file %s is not a PNG image", name)
	}
	return nil
}

// theImageShouldDifferFrom decodes both images and checks that removal
// actually changed pixel content without changing dimensions.
func (testCtx *TestContext) theImageShouldDifferFrom(edited, original string) error {
	editedImg, err := imaging.Open(testCtx.resolvePath(edited))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", edited, err)
	}
	originalImg, err := imaging.Open(testCtx.resolvePath(original))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", original, err)
	}

	if editedImg.Bounds() != originalImg.Bounds() {
		return fmt.Errorf("image %s has bounds %v, expected %v",
			edited, editedImg.Bounds(), originalImg.Bounds())
	}
	if bytes.Equal(imaging.Clone(editedImg).Pix, imaging.Clone(originalImg).Pix) {
		return fmt.Errorf("image %s is pixel-identical to %s", edited, original)
	}
	return nil
}

func (testCtx *TestContext) registerPhotoSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a photo "([^"]*)" containing one person$`, testCtx.aPhotoContainingOnePerson)
	sc.Step(`^a photo "([^"]*)" containing (\d+) people$`, testCtx.aPhotoContainingPeople)
	sc.Step(`^a photo "([^"]*)" of an empty landscape$`, testCtx.aPhotoOfAnEmptyLandscape)
	sc.Step(`^a corrupt image file "([^"]*)"$`, testCtx.aCorruptImageFile)
	sc.Step(`^a text file "([^"]*)"$`, testCtx.aTextFile)
	sc.Step(`^a junk file "([^"]*)" of (\d+) MB$`, testCtx.aJunkFileOfMB)
}

func (testCtx *TestContext) registerBackendSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a detection backend is running$`, testCtx.aDetectionBackendIsRunning)
	sc.Step(`^the detection backend reports label "([^"]*)" with confidence ([0-9.]+)$`,
		testCtx.theDetectionBackendReportsLabel)
	sc.Step(`^the detection backend is unreachable$`, testCtx.theDetectionBackendIsUnreachable)
	sc.Step(`^the detection backend should have received (\d+) detection requests?$`,
		testCtx.theDetectionBackendShouldHaveReceivedRequests)
}

func (testCtx *TestContext) registerImageFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the file "([^"]*)" should be a JPEG image$`, testCtx.theFileShouldBeAJPEGImage)
	sc.Step(`^the file "([^"]*)" should be a PNG image$`, testCtx.theFileShouldBeAPNGImage)
	sc.Step(`^the image "([^"]*)" should differ from "([^"]*)"$`, testCtx.theImageShouldDifferFrom)
}

// RegisterImageSteps wires the photo fixture, detection backend, and image
// file steps.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	testCtx.registerPhotoSteps(sc)
	testCtx.registerBackendSteps(sc)
	testCtx.registerImageFileSteps(sc)
}

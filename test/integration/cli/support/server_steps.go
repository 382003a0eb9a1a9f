package support

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/vanish/internal/server"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

const apiRequestTimeout = 10 * time.Second

func (testCtx *TestContext) theAnalysisServerIsRunning() error {
	return testCtx.startAPIServer(testCtx.defaultServerConfig())
}

func (testCtx *TestContext) theAnalysisServerIsRunningWithUploadLimit(limitMB int) error {
	cfg := testCtx.defaultServerConfig()
	cfg.MaxUploadMB = int64(limitMB)
	return testCtx.startAPIServer(cfg)
}

func (testCtx *TestContext) theAnalysisServerIsRunningWithRateLimit(perMinute int) error {
	cfg := testCtx.defaultServerConfig()
	cfg.RateLimit = server.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: perMinute,
	}
	return testCtx.startAPIServer(cfg)
}

// recordResponse captures status, body, and headers for later assertions.
func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		testCtx.LastHTTPHeaders[name] = resp.Header.Get(name)
	}
	testCtx.RecentStatusCodes = append(testCtx.RecentStatusCodes, resp.StatusCode)

	return nil
}

func (testCtx *TestContext) doRequest(method, path, contentType string, body io.Reader) error {
	if testCtx.APIServer == nil {
		return fmt.Errorf("no analysis server is running")
	}

	req, err := http.NewRequest(method, testCtx.apiURL(path), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := &http.Client{Timeout: apiRequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	return testCtx.recordResponse(resp)
}

// postPhotoForm uploads a photo as a multipart form with optional extra
// fields.
func (testCtx *TestContext) postPhotoForm(path, photo string, fields map[string]string) error {
	data, err := os.ReadFile(testCtx.resolvePath(photo)) //nolint:gosec // G304: test-controlled path
	if err != nil {
		return fmt.Errorf("failed to read photo %s: %w", photo, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filepath.Base(photo))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return testCtx.doRequest(http.MethodPost, path, writer.FormDataContentType(), &buf)
}

func (testCtx *TestContext) iGET(path string) error {
	return testCtx.doRequest(http.MethodGet, path, "", nil)
}

func (testCtx *TestContext) iSendAnOPTIONSRequestTo(path string) error {
	return testCtx.doRequest(http.MethodOptions, path, "", nil)
}

func (testCtx *TestContext) iPOSTThePhotoTo(photo, path string) error {
	return testCtx.postPhotoForm(path, photo, nil)
}

func (testCtx *TestContext) iPOSTThePhotoRequestingRemoval(photo, path string) error {
	return testCtx.postPhotoForm(path, photo, map[string]string{"remove_people": "true"})
}

func (testCtx *TestContext) iPOSTThePhotoRequestingRemovalAsRawImage(photo, path string) error {
	return testCtx.postPhotoForm(path, photo, map[string]string{
		"remove_people": "true",
		"format":        "image",
	})
}

func (testCtx *TestContext) iPOSTThePhotoRequestingAnOverlay(photo, path string) error {
	return testCtx.postPhotoForm(path, photo, map[string]string{"format": "overlay"})
}

func (testCtx *TestContext) iPOSTThePhotoAsJSONBodyTo(photo, path string) error {
	data, err := os.ReadFile(testCtx.resolvePath(photo)) //nolint:gosec // G304: test-controlled path
	if err != nil {
		return fmt.Errorf("failed to read photo %s: %w", photo, err)
	}

	payload, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return err
	}

	return testCtx.doRequest(http.MethodPost, path, "application/json", bytes.NewReader(payload))
}

func (testCtx *TestContext) iPOSTTheFileAsRawBase64BodyTo(name, path string) error {
	data, err := os.ReadFile(testCtx.resolvePath(name)) //nolint:gosec // G304: test-controlled path
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", name, err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	return testCtx.doRequest(http.MethodPost, path, "text/plain", strings.NewReader(encoded))
}

func (testCtx *TestContext) iRedactThePhotoWithBox(photo string, left, top, width, height float64) error {
	boxes, err := json.Marshal([]vision.NormalizedBox{
		{Left: left, Top: top, Width: width, Height: height},
	})
	if err != nil {
		return err
	}
	return testCtx.postPhotoForm("/redact", photo, map[string]string{
		"boxes":  string(boxes),
		"format": "json",
	})
}

func (testCtx *TestContext) iRedactThePhotoWithBoxAsRawImage(photo string, left, top, width, height float64) error {
	boxes, err := json.Marshal([]vision.NormalizedBox{
		{Left: left, Top: top, Width: width, Height: height},
	})
	if err != nil {
		return err
	}
	return testCtx.postPhotoForm("/redact", photo, map[string]string{"boxes": string(boxes)})
}

func (testCtx *TestContext) iPOSTThePhotosAsBatch(first, second string) error {
	var images []server.BatchImageRequest
	for _, name := range []string{first, second} {
		data, err := os.ReadFile(testCtx.resolvePath(name)) //nolint:gosec // G304: test-controlled path
		if err != nil {
			return fmt.Errorf("failed to read photo %s: %w", name, err)
		}
		images = append(images, server.BatchImageRequest{Name: name, Data: data})
	}

	payload, err := json.Marshal(server.BatchAnalyzeRequest{Images: images})
	if err != nil {
		return err
	}

	return testCtx.doRequest(http.MethodPost, "/analyze/batch", "application/json", bytes.NewReader(payload))
}

func (testCtx *TestContext) iPOSTAnEmptyBodyTo(path string) error {
	return testCtx.doRequest(http.MethodPost, path, "text/plain", http.NoBody)
}

func (testCtx *TestContext) iSendAnalyzeRequestsWithThePhoto(count int, photo string) error {
	for i := 0; i < count; i++ {
		if err := testCtx.iPOSTThePhotoTo(photo, "/analyze"); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("response status is %d, expected %d\nbody:\n%s",
			testCtx.LastHTTPStatusCode, status, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldBeValidJSON() error {
	var parsed interface{}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &parsed); err != nil {
		return fmt.Errorf("response is not valid JSON: %w\nbody:\n%s", err, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, expected) {
		return fmt.Errorf("response does not contain %q\nbody:\n%s", expected, testCtx.LastHTTPResponse)
	}
	return nil
}

// responseField navigates a dotted path through the last JSON response.
func (testCtx *TestContext) responseField(path string) (interface{}, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &parsed); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	return lookupJSONField(parsed, path)
}

func (testCtx *TestContext) theResponseJSONShouldContain(path string) error {
	wantArray := false
	if trimmed, found := strings.CutSuffix(path, ".array"); found {
		wantArray = true
		path = trimmed
	}

	value, err := testCtx.responseField(path)
	if err != nil {
		return fmt.Errorf("%w\nbody:\n%s", err, testCtx.LastHTTPResponse)
	}
	if wantArray {
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("field %q is not an array (got %T)", path, value)
		}
	}
	return nil
}

func (testCtx *TestContext) theResponseFieldShouldBe(path, expected string) error {
	value, err := testCtx.responseField(path)
	if err != nil {
		return fmt.Errorf("%w\nbody:\n%s", err, testCtx.LastHTTPResponse)
	}

	actual := fmt.Sprintf("%v", value)
	if actual != expected {
		return fmt.Errorf("field %q is %q, expected %q\nbody:\n%s",
			path, actual, expected, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldIncludeARegeneratedImage() error {
	value, err := testCtx.responseField("regeneratedImageBase64")
	if err != nil {
		return fmt.Errorf("%w\nbody:\n%s", err, testCtx.LastHTTPResponse)
	}

	encoded, ok := value.(string)
	if !ok || encoded == "" {
		return fmt.Errorf("regenerated image field is empty")
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("regenerated image is not valid base64: %w", err)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldNotIncludeARegeneratedImage() error {
	if _, err := testCtx.responseField("regeneratedImageBase64"); err == nil {
		return fmt.Errorf("response includes a regenerated image but should not\nbody:\n%s",
			testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	actual := testCtx.LastHTTPHeaders[name]
	if actual != expected {
		return fmt.Errorf("header %q is %q, expected %q", name, actual, expected)
	}
	return nil
}

func (testCtx *TestContext) atLeastOneRequestShouldBeRateLimited() error {
	for _, code := range testCtx.RecentStatusCodes {
		if code == http.StatusTooManyRequests {
			return nil
		}
	}
	return fmt.Errorf("no request was rate limited; status codes: %v", testCtx.RecentStatusCodes)
}

func (testCtx *TestContext) registerServerLifecycleSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the analysis server is running$`, testCtx.theAnalysisServerIsRunning)
	sc.Step(`^the analysis server is running with a (\d+) MB upload limit$`,
		testCtx.theAnalysisServerIsRunningWithUploadLimit)
	sc.Step(`^the analysis server is running with a rate limit of (\d+) requests per minute$`,
		testCtx.theAnalysisServerIsRunningWithRateLimit)
}

func (testCtx *TestContext) registerServerRequestSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I send an OPTIONS request to "([^"]*)"$`, testCtx.iSendAnOPTIONSRequestTo)
	sc.Step(`^I POST the photo "([^"]*)" to "([^"]*)"$`, testCtx.iPOSTThePhotoTo)
	sc.Step(`^I POST the photo "([^"]*)" to "([^"]*)" requesting removal$`,
		testCtx.iPOSTThePhotoRequestingRemoval)
	sc.Step(`^I POST the photo "([^"]*)" to "([^"]*)" requesting removal as a raw image$`,
		testCtx.iPOSTThePhotoRequestingRemovalAsRawImage)
	sc.Step(`^I POST the photo "([^"]*)" to "([^"]*)" requesting an overlay$`,
		testCtx.iPOSTThePhotoRequestingAnOverlay)
	sc.Step(`^I POST the photo "([^"]*)" as a JSON body to "([^"]*)"$`,
		testCtx.iPOSTThePhotoAsJSONBodyTo)
	sc.Step(`^I POST the file "([^"]*)" as a raw base64 body to "([^"]*)"$`,
		testCtx.iPOSTTheFileAsRawBase64BodyTo)
	sc.Step(`^I redact the photo "([^"]*)" with a box at left ([0-9.]+) top ([0-9.]+) width ([0-9.]+) height ([0-9.]+)$`,
		testCtx.iRedactThePhotoWithBox)
	sc.Step(`^I redact the photo "([^"]*)" with a box at left ([0-9.]+) top ([0-9.]+) width ([0-9.]+) height ([0-9.]+) as a raw image$`,
		testCtx.iRedactThePhotoWithBoxAsRawImage)
	sc.Step(`^I POST the photos "([^"]*)" and "([^"]*)" as a batch$`, testCtx.iPOSTThePhotosAsBatch)
	sc.Step(`^I POST an empty body to "([^"]*)"$`, testCtx.iPOSTAnEmptyBodyTo)
	sc.Step(`^I send (\d+) analyze requests with the photo "([^"]*)"$`,
		testCtx.iSendAnalyzeRequestsWithThePhoto)
}

func (testCtx *TestContext) registerServerResponseSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should be valid JSON$`, testCtx.theResponseShouldBeValidJSON)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON should contain "([^"]*)"$`, testCtx.theResponseJSONShouldContain)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response should include a regenerated image$`,
		testCtx.theResponseShouldIncludeARegeneratedImage)
	sc.Step(`^the response should not include a regenerated image$`,
		testCtx.theResponseShouldNotIncludeARegeneratedImage)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^at least one request should be rate limited$`, testCtx.atLeastOneRequestShouldBeRateLimited)
}

// RegisterServerSteps wires the in-process API server steps and the serve
// command process steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	testCtx.registerServerLifecycleSteps(sc)
	testCtx.registerServerRequestSteps(sc)
	testCtx.registerServerResponseSteps(sc)
	testCtx.registerServerProcessSteps(sc)
}

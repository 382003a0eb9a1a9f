package support

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/server"
)

// APITestServer runs the real API server over httptest with the canned
// detector injected, so server scenarios exercise the production handlers
// and middleware without an external process.
type APITestServer struct {
	HTTP *httptest.Server
	API  *server.Server
}

// defaultServerConfig mirrors the serve command's flag defaults.
func (testCtx *TestContext) defaultServerConfig() server.Config {
	return server.Config{
		Host:            "localhost",
		CORSOrigin:      "*",
		MaxUploadMB:     50,
		TimeoutSec:      30,
		OverlayEnabled:  true,
		OverlayBoxColor: "#FF0000",
		PipelineConfig:  pipeline.DefaultConfig(),
		Detector:        &storeDetector{store: testCtx.Labels},
	}
}

// startAPIServer starts the in-process API server, replacing any server a
// previous step left running.
func (testCtx *TestContext) startAPIServer(cfg server.Config) error {
	if err := testCtx.stopAPIServer(); err != nil {
		return err
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	testCtx.APIServer = &APITestServer{
		HTTP: httptest.NewServer(mux),
		API:  srv,
	}

	return nil
}

// stopAPIServer shuts down the in-process API server if one is running.
func (testCtx *TestContext) stopAPIServer() error {
	if testCtx.APIServer == nil {
		return nil
	}

	testCtx.APIServer.HTTP.Close()
	err := testCtx.APIServer.API.Close()
	testCtx.APIServer = nil
	return err
}

// apiURL joins a path onto the running API server's base URL.
func (testCtx *TestContext) apiURL(path string) string {
	return testCtx.APIServer.HTTP.URL + path
}

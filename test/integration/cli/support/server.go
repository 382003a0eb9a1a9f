package support

import (
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cucumber/godog"
)

const (
	serverStartTimeout = 15 * time.Second
	serverStopTimeout  = 10 * time.Second
)

// pickFreePort asks the kernel for an unused TCP port.
func pickFreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

// iStartTheServerWith launches the serve command as a real process and
// waits until its health endpoint responds.
func (testCtx *TestContext) iStartTheServerWith(command string) error {
	if strings.Contains(command, "{port}") && testCtx.ServerPort == 0 {
		port, err := pickFreePort()
		if err != nil {
			return fmt.Errorf("failed to pick a free port: %w", err)
		}
		testCtx.ServerPort = port
	}

	command = testCtx.substituteCommandVariables(command)
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return fmt.Errorf("empty server command")
	}

	// Run the freshly built binary rather than whatever PATH resolves.
	if parts[0] == "vanish" {
		parts[0] = filepath.Join(testCtx.WorkingDir, "bin", "vanish")
	}

	cmd := exec.Command(parts[0], parts[1:]...) //nolint:gosec // G204: commands come from feature files
	cmd.Dir = testCtx.WorkingDir

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	testCtx.LastCommand = command
	testCtx.ServerProcess = cmd.Process

	if err := testCtx.waitForServerReady(); err != nil {
		_ = testCtx.StopServerProcess()
		return err
	}
	return nil
}

func (testCtx *TestContext) serverURL() string {
	return fmt.Sprintf("http://%s:%d", testCtx.ServerHost, testCtx.ServerPort)
}

func (testCtx *TestContext) isServerHealthy() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(testCtx.serverURL() + "/health")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (testCtx *TestContext) waitForServerReady() error {
	deadline := time.Now().Add(serverStartTimeout)
	for time.Now().Before(deadline) {
		if testCtx.isServerHealthy() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become ready within %v", serverStartTimeout)
}

func (testCtx *TestContext) theServerShouldReportHealthy() error {
	if !testCtx.isServerHealthy() {
		return fmt.Errorf("server at %s is not healthy", testCtx.serverURL())
	}
	return nil
}

func (testCtx *TestContext) iSendSIGTERMToTheServer() error {
	if testCtx.ServerProcess == nil {
		return fmt.Errorf("no server process is running")
	}
	return testCtx.ServerProcess.Signal(syscall.SIGTERM)
}

func (testCtx *TestContext) theServerProcessShouldExit() error {
	if testCtx.ServerProcess == nil {
		return fmt.Errorf("no server process is running")
	}

	done := make(chan error, 1)
	go func() {
		_, err := testCtx.ServerProcess.Wait()
		done <- err
	}()

	select {
	case err := <-done:
		testCtx.ServerProcess = nil
		testCtx.ServerPort = 0
		if err != nil {
			return fmt.Errorf("failed to wait for server process: %w", err)
		}
		return nil
	case <-time.After(serverStopTimeout):
		return fmt.Errorf("server process did not exit within %v", serverStopTimeout)
	}
}

// StopServerProcess terminates a running serve process, escalating to
// SIGKILL if it ignores SIGTERM.
func (testCtx *TestContext) StopServerProcess() error {
	if testCtx.ServerProcess == nil {
		return nil
	}

	_ = testCtx.ServerProcess.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = testCtx.ServerProcess.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(serverStopTimeout):
		_ = testCtx.ServerProcess.Kill()
		<-done
	}

	testCtx.ServerProcess = nil
	testCtx.ServerPort = 0
	return nil
}

func (testCtx *TestContext) registerServerProcessSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I start the server with "([^"]*)"$`, testCtx.iStartTheServerWith)
	sc.Step(`^the server should report healthy$`, testCtx.theServerShouldReportHealthy)
	sc.Step(`^I send SIGTERM to the server$`, testCtx.iSendSIGTERMToTheServer)
	sc.Step(`^the server process should exit$`, testCtx.theServerProcessShouldExit)
}

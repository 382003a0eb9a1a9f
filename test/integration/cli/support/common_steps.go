package support

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

const commandTimeout = 30 * time.Second

// substituteCommandVariables replaces scenario placeholders with values the
// Given steps established.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "{temp_dir}", testCtx.TempDir)
	if testCtx.DetectionStub != nil {
		command = strings.ReplaceAll(command, "{endpoint}", testCtx.DetectionStub.URL())
	}
	if testCtx.UnreachableEndpoint != "" {
		command = strings.ReplaceAll(command, "{bad_endpoint}", testCtx.UnreachableEndpoint)
	}
	if testCtx.ServerPort != 0 {
		command = strings.ReplaceAll(command, "{port}", strconv.Itoa(testCtx.ServerPort))
	}
	return command
}

// resolvePath resolves a path from a feature file: placeholders are
// substituted, absolute paths pass through, and relative paths land in the
// scenario temp directory.
func (testCtx *TestContext) resolvePath(name string) string {
	name = testCtx.substituteCommandVariables(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// iRunCommand executes a CLI command and captures its output.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...) //nolint:gosec // G204: commands come from feature files
	cmd.Dir = testCtx.WorkingDir

	output, err := cmd.CombinedOutput()
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)
	testCtx.LastOutput = string(output)
	testCtx.LastError = err

	testCtx.LastExitCode = 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			testCtx.LastExitCode = exitErr.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	}

	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %w\noutput:\n%s",
			testCtx.LastCommand, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("command %q succeeded but was expected to fail\noutput:\n%s",
			testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	expected = testCtx.substituteCommandVariables(expected)
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain %q\noutput:\n%s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(unexpected string) error {
	unexpected = testCtx.substituteCommandVariables(unexpected)
	if strings.Contains(testCtx.LastOutput, unexpected) {
		return fmt.Errorf("output contains %q but should not\noutput:\n%s", unexpected, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMention checks the combined output for an error message,
// ignoring case so wording tweaks don't break scenarios.
func (testCtx *TestContext) theErrorShouldMention(fragment string) error {
	if !strings.Contains(strings.ToLower(testCtx.LastOutput), strings.ToLower(fragment)) {
		return fmt.Errorf("output does not mention %q\noutput:\n%s", fragment, testCtx.LastOutput)
	}
	return nil
}

// extractJSON cuts the JSON document out of command output, skipping
// progress lines printed before it.
func extractJSON(output string) string {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end < start {
		return ""
	}
	return output[start : end+1]
}

// extractCSV cuts the CSV table out of command output, skipping progress
// lines printed before the header row.
func extractCSV(output string) string {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if strings.Contains(line, ",") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	return ""
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	doc := extractJSON(testCtx.LastOutput)
	if doc == "" {
		return fmt.Errorf("no JSON document in output:\n%s", testCtx.LastOutput)
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\noutput:\n%s", err, testCtx.LastOutput)
	}
	return nil
}

// lookupJSONField navigates a dotted field path through nested objects.
func lookupJSONField(doc interface{}, path string) (interface{}, error) {
	current := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: parent is not an object", path)
		}
		value, exists := obj[part]
		if !exists {
			return nil, fmt.Errorf("field %q not found", path)
		}
		current = value
	}
	return current, nil
}

// theJSONShouldContain checks that a dotted field path exists in the JSON
// output. A trailing ".array" segment asserts the field is a JSON array.
func (testCtx *TestContext) theJSONShouldContain(path string) error {
	var parsed interface{}
	if err := json.Unmarshal([]byte(extractJSON(testCtx.LastOutput)), &parsed); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}

	wantArray := false
	if trimmed, found := strings.CutSuffix(path, ".array"); found {
		wantArray = true
		path = trimmed
	}

	value, err := lookupJSONField(parsed, path)
	if err != nil {
		return fmt.Errorf("%w\noutput:\n%s", err, testCtx.LastOutput)
	}
	if wantArray {
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("field %q is not an array (got %T)", path, value)
		}
	}
	return nil
}

// theJSONFieldShouldBe compares a field against its expected value using the
// value's default formatting.
func (testCtx *TestContext) theJSONFieldShouldBe(path, expected string) error {
	var parsed interface{}
	if err := json.Unmarshal([]byte(extractJSON(testCtx.LastOutput)), &parsed); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}

	value, err := lookupJSONField(parsed, path)
	if err != nil {
		return fmt.Errorf("%w\noutput:\n%s", err, testCtx.LastOutput)
	}

	actual := fmt.Sprintf("%v", value)
	if actual != expected {
		return fmt.Errorf("field %q is %q, expected %q", path, actual, expected)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidCSV() error {
	table := extractCSV(testCtx.LastOutput)
	if table == "" {
		return fmt.Errorf("no CSV table in output:\n%s", testCtx.LastOutput)
	}
	if _, err := csv.NewReader(strings.NewReader(table)).ReadAll(); err != nil {
		return fmt.Errorf("output is not valid CSV: %w\noutput:\n%s", err, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCSVShouldHaveAnalysisHeaders() error {
	table := extractCSV(testCtx.LastOutput)
	records, err := csv.NewReader(strings.NewReader(table)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("CSV output has no header row")
	}

	header := strings.Join(records[0], ",")
	for _, column := range []string{"file", "person_present", "person_count", "regions_applied"} {
		if !strings.Contains(header, column) {
			return fmt.Errorf("CSV header missing column %q: %s", column, header)
		}
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	path := testCtx.resolvePath(name)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file", path)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, expected string) error {
	path := testCtx.resolvePath(name)
	data, err := os.ReadFile(path) //nolint:gosec // G304: test-controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain %q\ncontents:\n%s", path, expected, string(data))
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContainUsageInformation() error {
	for _, marker := range []string{"Usage:", "Flags:"} {
		if !strings.Contains(testCtx.LastOutput, marker) {
			return fmt.Errorf("output does not contain %q\noutput:\n%s", marker, testCtx.LastOutput)
		}
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldListAvailableSubcommands() error {
	for _, name := range []string{"analyze", "batch", "serve", "version"} {
		if !strings.Contains(testCtx.LastOutput, name) {
			return fmt.Errorf("output does not list subcommand %q\noutput:\n%s", name, testCtx.LastOutput)
		}
	}
	return nil
}

func (testCtx *TestContext) buildInformationShouldBeIncluded() error {
	for _, marker := range []string{"Commit:", "Date:"} {
		if !strings.Contains(testCtx.LastOutput, marker) {
			return fmt.Errorf("output does not contain %q\noutput:\n%s", marker, testCtx.LastOutput)
		}
	}
	return nil
}

func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
}

func (testCtx *TestContext) registerOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the output should contain usage information$`, testCtx.theOutputShouldContainUsageInformation)
	sc.Step(`^the output should list available subcommands$`, testCtx.theOutputShouldListAvailableSubcommands)
	sc.Step(`^build information should be included$`, testCtx.buildInformationShouldBeIncluded)
}

func (testCtx *TestContext) registerFormatSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the output should be valid CSV$`, testCtx.theOutputShouldBeValidCSV)
	sc.Step(`^the CSV should have analysis headers$`, testCtx.theCSVShouldHaveAnalysisHeaders)
}

func (testCtx *TestContext) registerFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

// RegisterCommonSteps wires the command, output, format, and file steps
// shared by all feature files.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	testCtx.registerCommandSteps(sc)
	testCtx.registerOutputSteps(sc)
	testCtx.registerFormatSteps(sc)
	testCtx.registerFileSteps(sc)
}

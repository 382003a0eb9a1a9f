package testutil

// SceneFixture records the ground truth for a generated scene image, so
// detector output can be checked against it by hand or by tooling.
type SceneFixture struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputFile   string              `json:"input_file"`
	Expected    SceneExpectedResult `json:"expected"`
}

// SceneExpectedResult is the detection outcome a scene was built to produce.
type SceneExpectedResult struct {
	PersonCount int      `json:"person_count"`
	PersonBoxes []Figure `json:"person_boxes,omitempty"`
}
